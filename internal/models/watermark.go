package models

import (
	"encoding/hex"
	"fmt"
	"image/color"
	"strings"
)

type WatermarkType string

const (
	WatermarkText WatermarkType = "TEXT"
	WatermarkLogo WatermarkType = "LOGO"
	WatermarkBoth WatermarkType = "BOTH"
)

type Position string

const (
	PositionCenter      Position = "CENTER"
	PositionTopLeft     Position = "TOP_LEFT"
	PositionTopRight    Position = "TOP_RIGHT"
	PositionBottomLeft  Position = "BOTTOM_LEFT"
	PositionBottomRight Position = "BOTTOM_RIGHT"
	PositionTile        Position = "TILE"
)

type FontSize string

const (
	FontSmall  FontSize = "SMALL"
	FontMedium FontSize = "MEDIUM"
	FontLarge  FontSize = "LARGE"
)

const (
	MinOpacity = 0.1
	MaxOpacity = 0.9
)

// WatermarkSettings is a value type. The With* methods return an updated
// copy and never touch the receiver.
type WatermarkSettings struct {
	Enabled   bool          `json:"enabled"`
	Type      WatermarkType `json:"type"`
	Text      string        `json:"text"`
	LogoURL   string        `json:"logoUrl,omitempty"`
	Position  Position      `json:"position"`
	Opacity   float64       `json:"opacity"`
	FontSize  FontSize      `json:"fontSize"`
	TextColor string        `json:"textColor"`
	Rotation  int           `json:"rotation"`
	Margin    int           `json:"margin"`
}

func DefaultWatermarkSettings() WatermarkSettings {
	return WatermarkSettings{
		Enabled:   false,
		Type:      WatermarkText,
		Text:      "SAMPLE",
		Position:  PositionBottomRight,
		Opacity:   0.5,
		FontSize:  FontMedium,
		TextColor: "#FFFFFF",
		Rotation:  0,
		Margin:    20,
	}
}

func (s WatermarkSettings) WithEnabled(v bool) WatermarkSettings {
	s.Enabled = v
	return s
}

func (s WatermarkSettings) WithType(v WatermarkType) WatermarkSettings {
	s.Type = v
	return s
}

func (s WatermarkSettings) WithText(v string) WatermarkSettings {
	s.Text = v
	return s
}

func (s WatermarkSettings) WithLogoURL(v string) WatermarkSettings {
	s.LogoURL = v
	return s
}

func (s WatermarkSettings) WithPosition(v Position) WatermarkSettings {
	s.Position = v
	return s
}

func (s WatermarkSettings) WithFontSize(v FontSize) WatermarkSettings {
	s.FontSize = v
	return s
}

func (s WatermarkSettings) WithTextColor(v string) WatermarkSettings {
	s.TextColor = v
	return s
}

func (s WatermarkSettings) WithMargin(v int) WatermarkSettings {
	s.Margin = v
	return s
}

func (s WatermarkSettings) WithOpacity(v float64) WatermarkSettings {
	s.Opacity = clampOpacity(v)
	return s
}

func (s WatermarkSettings) WithRotation(v int) WatermarkSettings {
	s.Rotation = wrapDegrees(v)
	return s
}

// Normalize clamps opacity, wraps rotation and substitutes defaults for
// unknown enum values.
func (s WatermarkSettings) Normalize() WatermarkSettings {
	def := DefaultWatermarkSettings()
	switch s.Type {
	case WatermarkText, WatermarkLogo, WatermarkBoth:
	default:
		s.Type = def.Type
	}
	switch s.Position {
	case PositionCenter, PositionTopLeft, PositionTopRight, PositionBottomLeft, PositionBottomRight, PositionTile:
	default:
		s.Position = def.Position
	}
	switch s.FontSize {
	case FontSmall, FontMedium, FontLarge:
	default:
		s.FontSize = def.FontSize
	}
	if _, err := ParseHexColor(s.TextColor); err != nil {
		s.TextColor = def.TextColor
	}
	if s.Margin < 0 {
		s.Margin = 0
	}
	s.Opacity = clampOpacity(s.Opacity)
	s.Rotation = wrapDegrees(s.Rotation)
	return s
}

// FontPixels maps the symbolic font size onto a pixel size.
func (s WatermarkSettings) FontPixels() float64 {
	switch s.FontSize {
	case FontSmall:
		return 16
	case FontLarge:
		return 32
	default:
		return 24
	}
}

func (s WatermarkSettings) DrawsText() bool {
	return (s.Type == WatermarkText || s.Type == WatermarkBoth) && strings.TrimSpace(s.Text) != ""
}

func (s WatermarkSettings) DrawsLogo() bool {
	return (s.Type == WatermarkLogo || s.Type == WatermarkBoth) && strings.TrimSpace(s.LogoURL) != ""
}

// SettingsPatch carries the fields of a partial update. Nil fields are left
// untouched.
type SettingsPatch struct {
	Enabled   *bool          `json:"enabled,omitempty"`
	Type      *WatermarkType `json:"type,omitempty"`
	Text      *string        `json:"text,omitempty"`
	LogoURL   *string        `json:"logoUrl,omitempty"`
	Position  *Position      `json:"position,omitempty"`
	Opacity   *float64       `json:"opacity,omitempty"`
	FontSize  *FontSize      `json:"fontSize,omitempty"`
	TextColor *string        `json:"textColor,omitempty"`
	Rotation  *int           `json:"rotation,omitempty"`
	Margin    *int           `json:"margin,omitempty"`
}

// Validate rejects enum values and colors Normalize would otherwise replace
// silently.
func (p SettingsPatch) Validate() error {
	if p.Type != nil {
		switch *p.Type {
		case WatermarkText, WatermarkLogo, WatermarkBoth:
		default:
			return fmt.Errorf("unknown watermark type %q", *p.Type)
		}
	}
	if p.Position != nil {
		switch *p.Position {
		case PositionCenter, PositionTopLeft, PositionTopRight, PositionBottomLeft, PositionBottomRight, PositionTile:
		default:
			return fmt.Errorf("unknown position %q", *p.Position)
		}
	}
	if p.FontSize != nil {
		switch *p.FontSize {
		case FontSmall, FontMedium, FontLarge:
		default:
			return fmt.Errorf("unknown font size %q", *p.FontSize)
		}
	}
	if p.TextColor != nil {
		if _, err := ParseHexColor(*p.TextColor); err != nil {
			return err
		}
	}
	if p.Margin != nil && *p.Margin < 0 {
		return fmt.Errorf("margin must not be negative")
	}
	return nil
}

func (p SettingsPatch) Apply(s WatermarkSettings) WatermarkSettings {
	if p.Enabled != nil {
		s = s.WithEnabled(*p.Enabled)
	}
	if p.Type != nil {
		s = s.WithType(*p.Type)
	}
	if p.Text != nil {
		s = s.WithText(*p.Text)
	}
	if p.LogoURL != nil {
		s = s.WithLogoURL(*p.LogoURL)
	}
	if p.Position != nil {
		s = s.WithPosition(*p.Position)
	}
	if p.Opacity != nil {
		s = s.WithOpacity(*p.Opacity)
	}
	if p.FontSize != nil {
		s = s.WithFontSize(*p.FontSize)
	}
	if p.TextColor != nil {
		s = s.WithTextColor(*p.TextColor)
	}
	if p.Rotation != nil {
		s = s.WithRotation(*p.Rotation)
	}
	if p.Margin != nil {
		s = s.WithMargin(*p.Margin)
	}
	return s.Normalize()
}

// ParseHexColor accepts #RGB and #RRGGBB, with or without the leading '#'.
func ParseHexColor(s string) (color.NRGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return color.NRGBA{}, fmt.Errorf("expected 6 hex chars, got %q", s)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	return color.NRGBA{R: raw[0], G: raw[1], B: raw[2], A: 255}, nil
}

func clampOpacity(v float64) float64 {
	if v < MinOpacity {
		return MinOpacity
	}
	if v > MaxOpacity {
		return MaxOpacity
	}
	return v
}

func wrapDegrees(v int) int {
	v %= 360
	if v < 0 {
		v += 360
	}
	return v
}
