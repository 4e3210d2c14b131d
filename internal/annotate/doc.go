// Package annotate inserts FakeBuster's visual markers into a page.
//
// Images get a small badge, "❌ 91% likely AI", in their top-left corner.
// The image is wrapped in a relatively positioned span and the badge is
// absolutely positioned with pointer-events disabled, so the page layout
// and the image's own attributes stay as they were. Text results are shown
// in a tooltip above the selection that removes itself after a few seconds.
//
// The renderer does not deduplicate: callers decide what to render.
package annotate
