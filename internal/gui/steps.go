package gui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"nidb-uploader/internal/archive"
	"nidb-uploader/internal/catalog"
	"nidb-uploader/internal/classify"
	"nidb-uploader/internal/cli"
	"nidb-uploader/internal/profiles"
	"nidb-uploader/internal/scan"
)

// StepBuilder owns the widgets and state behind every wizard page.
type StepBuilder struct {
	env    *cli.Env
	window fyne.Window
	wizard *Wizard
	status *statusIndicator

	// Connection
	profileSelect   *widget.Select
	profileList     []profiles.Profile
	profile         profiles.Profile
	profileIndex    int
	client          *archive.Client
	connected       bool
	connectionReply *widget.Label
	selects         map[archive.ListKind]*widget.Select
	itemsMu         sync.Mutex
	items           map[archive.ListKind][]archive.ListItem

	// Data
	dirEntry       *widget.Entry
	modalitySelect *widget.Select
	searchButton   *widget.Button
	searchStatus   *widget.Label
	fileList       *widget.List
	fileSummary    *widget.Label
	cat            *catalog.Catalog
	selectedRow    int
	searchCancel   context.CancelFunc

	// Options
	nameCheck      *widget.Check
	idCheck        *widget.Check
	yearCheck      *widget.Check
	removeDOBCheck *widget.Check
	matchIDCheck   *widget.Check
	tempDirEntry   *widget.Entry

	// Upload
	batchLabel    *widget.Label
	batchProgress *widget.ProgressBar
	fileProgress  *widget.ProgressBar
	countersLabel *widget.Label
	uploadStatus  *widget.Label
	cancelButton  *widget.Button

	mu           sync.Mutex
	searching    bool
	uploading    bool
	uploadCancel context.CancelFunc
	uploads      sync.WaitGroup
}

// NewStepBuilder creates the page builder for env.
func NewStepBuilder(env *cli.Env, window fyne.Window, wizard *Wizard, status *statusIndicator) *StepBuilder {
	return &StepBuilder{
		env:          env,
		window:       window,
		wizard:       wizard,
		status:       status,
		profileIndex: -1,
		selectedRow:  -1,
		cat:          catalog.New(),
		selects:      make(map[archive.ListKind]*widget.Select),
		items:        make(map[archive.ListKind][]archive.ListItem),
	}
}

// ConnectionPage picks a saved profile, tests it and chooses where data goes.
func (s *StepBuilder) ConnectionPage() Page {
	s.profileSelect = widget.NewSelect(nil, func(display string) {
		for i, p := range s.profileList {
			if p.Display() == display {
				s.selectProfile(i)
				return
			}
		}
	})
	s.profileSelect.PlaceHolder = "No connections setup"

	addBtn := widget.NewButton("Add...", s.showAddProfile)
	removeBtn := widget.NewButton("Remove", s.confirmRemoveProfile)
	testBtn := widget.NewButton("Test connection", s.testConnection)
	testBtn.Importance = widget.HighImportance

	s.connectionReply = widget.NewLabel("")
	s.connectionReply.Wrapping = fyne.TextWrapWord

	for _, kind := range []archive.ListKind{archive.ListInstances, archive.ListProjects, archive.ListSites, archive.ListEquipment} {
		sel := widget.NewSelect(nil, nil)
		sel.PlaceHolder = archive.Placeholder(kind)
		sel.Disable()
		s.selects[kind] = sel
	}
	s.selects[archive.ListInstances].OnChanged = func(string) { s.loadScoped() }

	s.reloadProfiles()

	form := widget.NewForm(
		widget.NewFormItem("Instance", s.selects[archive.ListInstances]),
		widget.NewFormItem("Project", s.selects[archive.ListProjects]),
		widget.NewFormItem("Site", s.selects[archive.ListSites]),
		widget.NewFormItem("Equipment", s.selects[archive.ListEquipment]),
	)

	content := container.NewVBox(
		pageTitle("Archive Connection"),
		widget.NewSeparator(),
		section("Connection",
			container.NewBorder(nil, nil, nil, container.NewHBox(addBtn, removeBtn), s.profileSelect),
			container.NewHBox(testBtn),
			s.connectionReply,
		),
		widget.NewSeparator(),
		section("Destination", form),
	)

	return Page{
		Content:  container.NewVScroll(container.NewPadded(content)),
		CanLeave: s.connectionReady,
	}
}

func (s *StepBuilder) reloadProfiles() {
	list, err := s.env.Profiles().Load()
	if err != nil {
		s.env.Log.Error().Err(err).Msg("Could not load connections")
		dialog.ShowError(err, s.window)
	}
	s.profileList = list

	options := make([]string, len(list))
	for i, p := range list {
		options[i] = p.Display()
	}
	s.profileSelect.Options = options
	s.profileSelect.ClearSelected()
	s.profileIndex = -1
	s.setConnected(false, "")

	if i := s.env.Cfg.Connection.Profile; i >= 0 && i < len(list) {
		s.profileSelect.SetSelectedIndex(i)
	} else if len(list) > 0 {
		s.profileSelect.SetSelectedIndex(0)
	}
	s.profileSelect.Refresh()
}

func (s *StepBuilder) selectProfile(i int) {
	s.profileIndex = i
	s.profile = s.profileList[i]
	s.setConnected(false, "")

	client, err := s.env.Client(s.profile)
	if err != nil {
		s.client = nil
		s.connectionReply.SetText(err.Error())
		return
	}
	s.client = client
}

func (s *StepBuilder) showAddProfile() {
	server := widget.NewEntry()
	server.SetPlaceHolder("https://nidb.example.org")
	user := widget.NewEntry()
	password := widget.NewPasswordEntry()

	items := []*widget.FormItem{
		widget.NewFormItem("Server", server),
		widget.NewFormItem("Username", user),
		widget.NewFormItem("Password", password),
	}
	d := dialog.NewForm("Add connection", "Save", "Cancel", items, func(ok bool) {
		if !ok {
			return
		}
		p, err := profiles.NewProfile(server.Text, user.Text, password.Text)
		if err == nil {
			err = s.env.Profiles().Append(p)
		}
		if err != nil {
			dialog.ShowError(err, s.window)
			return
		}
		s.env.Log.Info().Str("server", p.Server).Str("username", p.Username).Msg("Connection added")
		s.reloadProfiles()
		s.profileSelect.SetSelectedIndex(len(s.profileList) - 1)
	}, s.window)
	d.Resize(fyne.NewSize(460, 240))
	d.Show()
}

func (s *StepBuilder) confirmRemoveProfile() {
	i := s.profileIndex
	if i < 0 {
		return
	}
	dialog.ShowConfirm("Remove connection",
		fmt.Sprintf("Remove %s?", s.profileList[i].Display()),
		func(ok bool) {
			if !ok {
				return
			}
			if _, err := s.env.Profiles().Remove(i); err != nil {
				dialog.ShowError(err, s.window)
				return
			}
			s.reloadProfiles()
		}, s.window)
}

func (s *StepBuilder) setConnected(ok bool, reply string) {
	s.connected = ok
	s.connectionReply.SetText(reply)
	s.status.Set(ok)
	if !ok {
		for kind, sel := range s.selects {
			sel.Options = nil
			sel.ClearSelected()
			sel.PlaceHolder = archive.Placeholder(kind)
			sel.Disable()
		}
	}
}

func (s *StepBuilder) testConnection() {
	if s.client == nil {
		s.connectionReply.SetText("Select a connection first")
		return
	}
	s.connectionReply.SetText("Connecting to " + s.profile.Server + "...")
	client := s.client

	go func() {
		ctx := context.Background()
		reply, ok, err := client.TestConnection(ctx)
		if err != nil {
			s.env.Log.Error().Err(err).Msg("Connection test failed")
			s.setConnected(false, err.Error())
			return
		}
		s.setConnected(ok, reply)
		if !ok {
			return
		}
		s.loadList(ctx, archive.ListInstances, "")
		s.loadList(ctx, archive.ListEquipment, "")
	}()
}

// loadScoped refreshes the lists that depend on the chosen instance.
func (s *StepBuilder) loadScoped() {
	instance, ok := s.selected(archive.ListInstances)
	if !ok || s.client == nil {
		return
	}
	go func() {
		ctx := context.Background()
		s.loadList(ctx, archive.ListProjects, instance.ID)
		s.loadList(ctx, archive.ListSites, instance.ID)
	}()
}

func (s *StepBuilder) loadList(ctx context.Context, kind archive.ListKind, instanceID string) {
	items, err := s.client.List(ctx, kind, instanceID)
	if err != nil {
		s.env.Log.Error().Err(err).Str("list", kind.String()).Msg("Could not load list")
	}

	s.itemsMu.Lock()
	s.items[kind] = items
	s.itemsMu.Unlock()

	sel := s.selects[kind]
	sel.ClearSelected()
	if len(items) == 0 {
		sel.Options = nil
		sel.PlaceHolder = archive.Placeholder(kind)
		sel.Disable()
		sel.Refresh()
		return
	}
	sel.Options = displays(items)
	sel.PlaceHolder = "(Select)"
	sel.Enable()

	// Preselect configured IDs so repeat uploads need fewer clicks.
	if id := s.configuredID(kind); id != "" {
		if i := indexOfID(items, id); i >= 0 {
			sel.SetSelectedIndex(i)
		}
	}
	sel.Refresh()
}

func (s *StepBuilder) configuredID(kind archive.ListKind) string {
	u := s.env.Cfg.Upload
	switch kind {
	case archive.ListInstances:
		return u.InstanceID
	case archive.ListProjects:
		return u.ProjectID
	case archive.ListSites:
		return u.SiteID
	default:
		return u.EquipmentID
	}
}

func (s *StepBuilder) selected(kind archive.ListKind) (archive.ListItem, bool) {
	sel := s.selects[kind]
	if sel == nil {
		return archive.ListItem{}, false
	}
	s.itemsMu.Lock()
	defer s.itemsMu.Unlock()
	return itemByDisplay(s.items[kind], sel.Selected)
}

func (s *StepBuilder) connectionReady() bool {
	if !s.connected {
		dialog.ShowInformation("Connection", "Test the connection before continuing.", s.window)
		return false
	}
	for _, kind := range []archive.ListKind{archive.ListInstances, archive.ListProjects, archive.ListSites} {
		if _, ok := s.selected(kind); !ok {
			dialog.ShowInformation("Destination", "Select a "+strings.TrimSuffix(kind.String(), "s")+".", s.window)
			return false
		}
	}
	return true
}

// DataPage searches a directory and lists what was found.
func (s *StepBuilder) DataPage() Page {
	s.dirEntry = widget.NewEntry()
	s.dirEntry.SetPlaceHolder("/path/to/imaging/data")
	s.dirEntry.SetText(s.env.Cfg.DataDir)

	browse := widget.NewButton("Browse", func() {
		dialog.ShowFolderOpen(func(uri fyne.ListableURI, err error) {
			if err != nil || uri == nil {
				return
			}
			s.dirEntry.SetText(uri.Path())
		}, s.window)
	})

	s.modalitySelect = widget.NewSelect(classify.Modalities, nil)
	s.modalitySelect.SetSelected(s.env.Cfg.Modality)

	s.searchButton = widget.NewButton("Search", s.toggleSearch)
	s.searchButton.Importance = widget.HighImportance
	s.searchStatus = widget.NewLabel("")
	s.searchStatus.Wrapping = fyne.TextWrapWord

	s.fileList = widget.NewList(
		func() int { return s.cat.Len() },
		func() fyne.CanvasObject {
			t := canvas.NewText("", ColorTextPrimary)
			t.TextStyle = fyne.TextStyle{Monospace: true}
			t.TextSize = 11
			return t
		},
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			f, ok := s.cat.At(id)
			if !ok {
				return
			}
			t := obj.(*canvas.Text)
			t.Text = fileRow(f)
			t.Color = StatusColor(f.Status)
			t.Refresh()
		},
	)
	s.fileList.OnSelected = func(id widget.ListItemID) {
		s.selectedRow = id
		if f, ok := s.cat.At(id); ok && f.Note != "" {
			s.searchStatus.SetText(f.Note)
		}
	}

	removeBtn := widget.NewButton("Remove selected", func() {
		if s.selectedRow < 0 || s.isBusy() {
			return
		}
		s.cat.Remove([]int{s.selectedRow})
		s.selectedRow = -1
		s.fileList.UnselectAll()
		s.refreshFiles()
	})
	clearBtn := widget.NewButton("Clear", func() {
		if s.isBusy() {
			return
		}
		s.cat.Clear()
		s.selectedRow = -1
		s.fileList.UnselectAll()
		s.refreshFiles()
	})
	s.fileSummary = widget.NewLabel("")

	top := container.NewVBox(
		pageTitle("Select Data"),
		widget.NewSeparator(),
		section("Data directory",
			container.NewBorder(nil, nil, nil, browse, s.dirEntry),
			container.NewBorder(nil, nil, widget.NewLabel("Modality"), s.searchButton, s.modalitySelect),
			s.searchStatus,
		),
	)
	bottom := container.NewBorder(nil, nil, s.fileSummary, container.NewHBox(removeBtn, clearBtn))

	return Page{
		Content:  container.NewPadded(container.NewBorder(top, bottom, nil, nil, s.fileList)),
		CanLeave: func() bool {
			if s.isSearching() {
				return false
			}
			if len(cli.Uploadable(s.cat)) == 0 {
				dialog.ShowInformation("Data", "No files to upload. Search a directory first.", s.window)
				return false
			}
			return true
		},
	}
}

func (s *StepBuilder) isSearching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searching
}

func (s *StepBuilder) isBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searching || s.uploading
}

// toggleSearch starts a search, or cancels the one running.
func (s *StepBuilder) toggleSearch() {
	s.mu.Lock()
	if s.searching {
		s.searchCancel()
		s.mu.Unlock()
		return
	}
	dir := strings.TrimSpace(s.dirEntry.Text)
	if info, err := os.Stat(dir); dir == "" || err != nil || !info.IsDir() {
		s.mu.Unlock()
		s.searchStatus.SetText("Data directory does not exist")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.searching = true
	s.searchCancel = cancel
	s.mu.Unlock()

	modality := s.modalitySelect.Selected
	s.searchButton.SetText("Cancel")
	s.wizard.SetNextEnabled(false)

	scanner := &scan.Scanner{
		Log: s.env.Log.Logger,
		Progress: func(found, scanned int, _ string) {
			if scanned%50 == 0 {
				s.searchStatus.SetText(fmt.Sprintf("Searching... found %d of %d files", found, scanned))
			}
		},
	}

	go func() {
		defer func() {
			cancel()
			s.mu.Lock()
			s.searching = false
			s.mu.Unlock()
			s.searchButton.SetText("Search")
			s.wizard.SetNextEnabled(true)
			s.refreshFiles()
		}()

		sum, err := scanner.Scan(ctx, dir, modality, s.cat)
		switch {
		case ctx.Err() != nil:
			s.searchStatus.SetText(fmt.Sprintf("Search cancelled after %d files", sum.Scanned))
		case err != nil:
			s.searchStatus.SetText("Error: " + err.Error())
		default:
			text := fmt.Sprintf("Found %d of %d files (%s)", sum.Found, sum.Scanned, catalog.HumanReadableSize(sum.Bytes))
			if sum.InvalidNames > 0 {
				text += fmt.Sprintf("\n%d files have invalid names. %s", sum.InvalidNames, scan.EEGNameHint)
			}
			s.searchStatus.SetText(text)
		}
	}()
}

func (s *StepBuilder) refreshFiles() {
	s.fileList.Refresh()
	s.fileSummary.SetText(fmt.Sprintf("%d files, %s", s.cat.Len(), catalog.HumanReadableSize(s.cat.TotalSize(s.cat.Indices()))))
}

// fileRow is the one-line description of a file in the list.
func fileRow(f catalog.FoundFile) string {
	return fmt.Sprintf("%-7s %-7s %-14s %9s  %-17s %s",
		f.Kind, f.Modality, f.PatientID, catalog.HumanReadableSize(f.Size), f.Status, filepath.Base(f.Path))
}

func displays(items []archive.ListItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Display()
	}
	return out
}

func itemByDisplay(items []archive.ListItem, display string) (archive.ListItem, bool) {
	if display == "" {
		return archive.ListItem{}, false
	}
	for _, it := range items {
		if it.Display() == display {
			return it, true
		}
	}
	return archive.ListItem{}, false
}

func indexOfID(items []archive.ListItem, id string) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}
