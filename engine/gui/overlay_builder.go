package gui

// OverlayBuilderOption is a functional option for configuring an Overlay.
type OverlayBuilderOption func(*Overlay)

// WithScale sets the integer pixel scale of the text. Defaults to 1.
//
// Parameters:
//   - scale: the scale, at least 1
//
// Returns:
//   - OverlayBuilderOption: option function to apply
func WithScale(scale int) OverlayBuilderOption {
	return func(o *Overlay) {
		o.scale = max(scale, 1)
	}
}

// WithVisible sets whether the overlay starts visible.
//
// Parameters:
//   - visible: the initial visibility
//
// Returns:
//   - OverlayBuilderOption: option function to apply
func WithVisible(visible bool) OverlayBuilderOption {
	return func(o *Overlay) {
		o.visible = visible
	}
}
