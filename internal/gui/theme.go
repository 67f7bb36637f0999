package gui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"

	"nidb-uploader/internal/catalog"
)

// Palette for the uploader window.
var (
	ColorBackground      = color.NRGBA{R: 0x1B, G: 0x22, B: 0x2C, A: 0xFF}
	ColorCardBackground  = color.NRGBA{R: 0x24, G: 0x2D, B: 0x3A, A: 0xFF}
	ColorPrimaryAccent   = color.NRGBA{R: 0x4F, G: 0xA3, B: 0xE0, A: 0xFF}
	ColorSuccess         = color.NRGBA{R: 0x6C, G: 0xCB, B: 0x8A, A: 0xFF}
	ColorWarning         = color.NRGBA{R: 0xF2, G: 0xC0, B: 0x5C, A: 0xFF}
	ColorError           = color.NRGBA{R: 0xE8, G: 0x6A, B: 0x6A, A: 0xFF}
	ColorTextPrimary     = color.NRGBA{R: 0xE4, G: 0xE9, B: 0xF0, A: 0xFF}
	ColorTextSecondary   = color.NRGBA{R: 0x9A, G: 0xA6, B: 0xB6, A: 0xFF}
	ColorDisabled        = color.NRGBA{R: 0x4E, G: 0x58, B: 0x66, A: 0xFF}
	ColorInputBackground = color.NRGBA{R: 0x2C, G: 0x36, B: 0x45, A: 0xFF}
	ColorBorder          = color.NRGBA{R: 0x3D, G: 0x48, B: 0x58, A: 0xFF}
	ColorHover           = color.NRGBA{R: 0x3B, G: 0x8A, B: 0xC4, A: 0xFF}
	ColorStepInactive    = color.NRGBA{R: 0x3D, G: 0x48, B: 0x58, A: 0xFF}
	ColorStepComplete    = color.NRGBA{R: 0x6C, G: 0xCB, B: 0x8A, A: 0xFF}
)

// StatusColor is the text color used for a file in the file list.
func StatusColor(s catalog.Status) color.Color {
	switch s {
	case catalog.StatusUploadSuccess:
		return ColorSuccess
	case catalog.StatusUploadFail, catalog.StatusAnonymizeError:
		return ColorError
	case catalog.StatusInvalidName:
		return ColorWarning
	case catalog.StatusUploadPending, catalog.StatusAnonymized:
		return ColorPrimaryAccent
	default:
		return ColorTextPrimary
	}
}

// uploaderTheme is a dark theme built on the default one.
type uploaderTheme struct{}

var _ fyne.Theme = (*uploaderTheme)(nil)

func (uploaderTheme) Color(name fyne.ThemeColorName, _ fyne.ThemeVariant) color.Color {
	switch name {
	case theme.ColorNameBackground:
		return ColorBackground
	case theme.ColorNameButton, theme.ColorNameFocus, theme.ColorNameHyperlink, theme.ColorNamePrimary:
		return ColorPrimaryAccent
	case theme.ColorNameDisabledButton, theme.ColorNameDisabled:
		return ColorDisabled
	case theme.ColorNameError:
		return ColorError
	case theme.ColorNameForeground:
		return ColorTextPrimary
	case theme.ColorNameHeaderBackground, theme.ColorNameMenuBackground, theme.ColorNameOverlayBackground:
		return ColorCardBackground
	case theme.ColorNameHover:
		return ColorHover
	case theme.ColorNameInputBackground:
		return ColorInputBackground
	case theme.ColorNameInputBorder, theme.ColorNameScrollBar, theme.ColorNameSeparator:
		return ColorBorder
	case theme.ColorNamePlaceHolder:
		return ColorTextSecondary
	case theme.ColorNameSelection:
		return color.NRGBA{R: 0x4F, G: 0xA3, B: 0xE0, A: 0x55}
	case theme.ColorNameShadow:
		return color.NRGBA{A: 0x66}
	case theme.ColorNameSuccess:
		return ColorSuccess
	case theme.ColorNameWarning:
		return ColorWarning
	default:
		return theme.DefaultTheme().Color(name, theme.VariantDark)
	}
}

func (uploaderTheme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

func (uploaderTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

func (uploaderTheme) Size(name fyne.ThemeSizeName) float32 {
	switch name {
	case theme.SizeNamePadding:
		return 6
	case theme.SizeNameInnerPadding:
		return 10
	case theme.SizeNameText:
		return 13
	case theme.SizeNameHeadingText:
		return 18
	case theme.SizeNameSubHeadingText:
		return 15
	case theme.SizeNameCaptionText:
		return 11
	default:
		return theme.DefaultTheme().Size(name)
	}
}
