package gui

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"nidb-uploader/internal/cli"
)

const (
	AppID     = "org.nidb.uploader"
	AppTitle  = "NiDB Uploader"
	AppWidth  = 760
	AppHeight = 640
)

// App is the graphical front end. It shares the Env of the command line.
type App struct {
	env        *cli.Env
	fyneApp    fyne.App
	mainWindow fyne.Window
	wizard     *Wizard
	steps      *StepBuilder
}

// NewApp creates the application for env.
func NewApp(env *cli.Env) *App {
	a := app.NewWithID(AppID)
	a.SetIcon(theme.UploadIcon())
	a.Settings().SetTheme(uploaderTheme{})
	return &App{env: env, fyneApp: a}
}

// Run shows the main window and blocks until it is closed.
func (a *App) Run() {
	a.mainWindow = a.fyneApp.NewWindow(AppTitle)
	a.mainWindow.Resize(fyne.NewSize(AppWidth, AppHeight))
	a.mainWindow.CenterOnScreen()

	status := newStatusIndicator()
	a.wizard = NewWizard()
	a.wizard.SetStatus(status.object)
	a.steps = NewStepBuilder(a.env, a.mainWindow, a.wizard, status)

	a.wizard.SetPage(StepConnection, a.steps.ConnectionPage())
	a.wizard.SetPage(StepData, a.steps.DataPage())
	a.wizard.SetPage(StepAnonymize, a.steps.AnonymizePage())
	a.wizard.SetPage(StepUpload, a.steps.UploadPage())
	a.wizard.SetOnFinish(a.mainWindow.Close)

	a.mainWindow.SetContent(a.wizard.Build())

	a.mainWindow.SetCloseIntercept(func() {
		if !a.steps.IsUploading() {
			a.mainWindow.Close()
			return
		}
		dialog.ShowConfirm("Confirm Exit",
			"An upload is in progress. Cancel it and exit?",
			func(confirm bool) {
				if confirm {
					a.steps.Cancel()
					a.env.Log.Warn().Msg("Upload cancelled from the window")
					a.mainWindow.Close()
				}
			}, a.mainWindow)
	})

	a.env.Log.Info().Msg("Window opened")
	a.mainWindow.ShowAndRun()
	a.steps.Wait()
}

// statusIndicator is a colored dot with a label showing whether the archive
// accepted the credentials.
type statusIndicator struct {
	circle *canvas.Circle
	label  *widget.Label
	object fyne.CanvasObject
}

func newStatusIndicator() *statusIndicator {
	s := &statusIndicator{
		circle: canvas.NewCircle(ColorError),
		label:  widget.NewLabel(""),
	}
	s.object = container.New(dotLayout{}, s.circle, s.label)
	s.Set(false)
	return s
}

// Set updates the indicator.
func (s *statusIndicator) Set(connected bool) {
	if connected {
		s.circle.FillColor = ColorSuccess
		s.label.SetText("Connected")
	} else {
		s.circle.FillColor = ColorError
		s.label.SetText("Not connected")
	}
	s.circle.Refresh()
}

// dotLayout centers a 10px circle vertically to the left of a label.
type dotLayout struct{}

const dotSize = float32(10)

func (dotLayout) MinSize(objects []fyne.CanvasObject) fyne.Size {
	if len(objects) < 2 {
		return fyne.NewSize(0, 0)
	}
	l := objects[1].MinSize()
	return fyne.NewSize(dotSize+8+l.Width, l.Height)
}

func (dotLayout) Layout(objects []fyne.CanvasObject, size fyne.Size) {
	if len(objects) < 2 {
		return
	}
	circle, label := objects[0], objects[1]
	l := label.MinSize()

	circle.Resize(fyne.NewSize(dotSize, dotSize))
	circle.Move(fyne.NewPos(4, (size.Height-dotSize)/2))
	label.Resize(l)
	label.Move(fyne.NewPos(dotSize+12, (size.Height-l.Height)/2))
}
