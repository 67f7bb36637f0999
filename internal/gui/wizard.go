package gui

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"
)

// WizardStep identifies a page of the wizard.
type WizardStep int

const (
	StepConnection WizardStep = iota
	StepData
	StepAnonymize
	StepUpload
)

var stepTitles = []string{"Connection", "Data", "Anonymize", "Upload"}

func (s WizardStep) String() string {
	if int(s) < len(stepTitles) {
		return stepTitles[s]
	}
	return "Unknown"
}

// Page is what a step contributes to the wizard.
type Page struct {
	Content fyne.CanvasObject
	// CanLeave reports whether Next may move past the page.
	CanLeave func() bool
	// OnEnter runs every time the page becomes current.
	OnEnter func()
	// NextText overrides the label of the Next button.
	NextText string
}

// Wizard is a linear sequence of pages with a step indicator.
type Wizard struct {
	current WizardStep
	pages   map[WizardStep]Page

	backButton *widget.Button
	nextButton *widget.Button
	onFinish   func()

	indicators []*canvas.Circle
	labels     []*canvas.Text
	header     fyne.CanvasObject
	status     fyne.CanvasObject
	content    *fyne.Container
}

// NewWizard creates a wizard positioned on the connection page.
func NewWizard() *Wizard {
	w := &Wizard{
		current: StepConnection,
		pages:   make(map[WizardStep]Page),
	}
	w.backButton = widget.NewButton("Back", w.Previous)
	w.nextButton = widget.NewButton("Next", w.Next)
	w.nextButton.Importance = widget.HighImportance
	w.backButton.Disable()
	w.header = w.buildIndicator()
	return w
}

func (w *Wizard) buildIndicator() fyne.CanvasObject {
	w.indicators = make([]*canvas.Circle, len(stepTitles))
	w.labels = make([]*canvas.Text, len(stepTitles))

	var items []fyne.CanvasObject
	for i, title := range stepTitles {
		circle := canvas.NewCircle(ColorStepInactive)
		circle.StrokeColor = ColorBorder
		circle.StrokeWidth = 2
		w.indicators[i] = circle

		label := canvas.NewText(title, ColorTextSecondary)
		label.TextSize = 12
		label.Alignment = fyne.TextAlignCenter
		w.labels[i] = label

		items = append(items, container.NewVBox(
			container.NewCenter(container.New(fixedLayout{24, 24, 24, 24, 0}, circle)),
			container.NewCenter(label),
		))
		if i < len(stepTitles)-1 {
			items = append(items, container.New(fixedLayout{40, 24, 40, 2, 11}, canvas.NewRectangle(ColorBorder)))
		}
	}
	w.refreshIndicator()
	return container.NewHBox(items...)
}

// fixedLayout gives every object a fixed size at a vertical offset.
type fixedLayout struct {
	minW, minH float32
	objW, objH float32
	offsetY    float32
}

func (l fixedLayout) MinSize([]fyne.CanvasObject) fyne.Size {
	return fyne.NewSize(l.minW, l.minH)
}

func (l fixedLayout) Layout(objects []fyne.CanvasObject, _ fyne.Size) {
	for _, o := range objects {
		o.Resize(fyne.NewSize(l.objW, l.objH))
		o.Move(fyne.NewPos(0, l.offsetY))
	}
}

func (w *Wizard) refreshIndicator() {
	for i := range stepTitles {
		step := WizardStep(i)
		switch {
		case step < w.current:
			w.indicators[i].FillColor = ColorStepComplete
			w.indicators[i].StrokeColor = ColorStepComplete
			w.labels[i].Color = ColorTextPrimary
		case step == w.current:
			w.indicators[i].FillColor = ColorPrimaryAccent
			w.indicators[i].StrokeColor = ColorPrimaryAccent
			w.labels[i].Color = ColorTextPrimary
		default:
			w.indicators[i].FillColor = ColorStepInactive
			w.indicators[i].StrokeColor = ColorBorder
			w.labels[i].Color = ColorTextSecondary
		}
		w.indicators[i].Refresh()
		w.labels[i].Refresh()
	}
}

// SetPage registers the page for step.
func (w *Wizard) SetPage(step WizardStep, p Page) {
	w.pages[step] = p
}

// SetStatus places obj between the navigation buttons.
func (w *Wizard) SetStatus(obj fyne.CanvasObject) {
	w.status = obj
}

// SetOnFinish is called when Next is pressed on the last page.
func (w *Wizard) SetOnFinish(fn func()) {
	w.onFinish = fn
}

// Current returns the visible step.
func (w *Wizard) Current() WizardStep {
	return w.current
}

// Next leaves the current page if it allows it.
func (w *Wizard) Next() {
	if p, ok := w.pages[w.current]; ok && p.CanLeave != nil && !p.CanLeave() {
		return
	}
	if w.current == StepUpload {
		if w.onFinish != nil {
			w.onFinish()
		}
		return
	}
	w.GoTo(w.current + 1)
}

// Previous moves back one page.
func (w *Wizard) Previous() {
	if w.current > StepConnection {
		w.GoTo(w.current - 1)
	}
}

// GoTo shows step and runs its OnEnter hook.
func (w *Wizard) GoTo(step WizardStep) {
	if step < StepConnection || step > StepUpload {
		return
	}
	w.current = step
	w.refreshIndicator()

	page := w.pages[step]
	if step == StepConnection {
		w.backButton.Disable()
	} else {
		w.backButton.Enable()
	}
	text := page.NextText
	if text == "" {
		text = "Next"
	}
	w.nextButton.SetText(text)
	w.nextButton.Enable()

	if w.content != nil {
		w.content.Objects = nil
		if page.Content != nil {
			w.content.Objects = []fyne.CanvasObject{page.Content}
		}
		w.content.Refresh()
	}
	if page.OnEnter != nil {
		page.OnEnter()
	}
}

// SetNextEnabled toggles the Next button.
func (w *Wizard) SetNextEnabled(enabled bool) {
	if enabled {
		w.nextButton.Enable()
	} else {
		w.nextButton.Disable()
	}
}

// SetNextText relabels the Next button.
func (w *Wizard) SetNextText(text string) {
	w.nextButton.SetText(text)
}

// SetBackEnabled toggles the Back button. It stays disabled on the first page.
func (w *Wizard) SetBackEnabled(enabled bool) {
	if enabled && w.current > StepConnection {
		w.backButton.Enable()
	} else {
		w.backButton.Disable()
	}
}

// Build lays out the wizard and shows the current page.
func (w *Wizard) Build() fyne.CanvasObject {
	w.content = container.NewStack()

	bg := canvas.NewRectangle(ColorCardBackground)
	bg.CornerRadius = 8
	card := container.NewStack(bg, container.NewPadded(w.content))

	separator := canvas.NewRectangle(ColorBorder)
	separator.SetMinSize(fyne.NewSize(0, 1))

	var middle fyne.CanvasObject = layout.NewSpacer()
	if w.status != nil {
		middle = container.NewCenter(w.status)
	}
	nav := container.NewBorder(nil, nil, w.backButton, w.nextButton, middle)

	w.GoTo(w.current)

	return container.NewBorder(
		container.NewVBox(container.NewPadded(container.NewCenter(w.header)), separator),
		container.NewPadded(nav),
		nil, nil,
		container.NewPadded(card),
	)
}

// section is a bold heading above content.
func section(title string, objs ...fyne.CanvasObject) fyne.CanvasObject {
	heading := widget.NewLabelWithStyle(title, fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	return container.NewVBox(append([]fyne.CanvasObject{heading}, objs...)...)
}

// pageTitle is the large heading at the top of a page.
func pageTitle(text string) *canvas.Text {
	t := canvas.NewText(text, ColorTextPrimary)
	t.TextSize = 18
	t.TextStyle = fyne.TextStyle{Bold: true}
	return t
}
