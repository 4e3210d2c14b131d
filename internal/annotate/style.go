package annotate

import (
	"fmt"

	"github.com/fakebuster/fakebuster/internal/model"
)

// Badge is the icon and colour used for one classification.
type Badge struct {
	Icon  string `json:"icon"`
	Color string `json:"color"`
	Label string `json:"label"`
}

// Style returns the badge for a classification.
func Style(c model.Classification) Badge {
	switch c {
	case model.ClassificationReal:
		return Badge{Icon: "✅", Color: "#008000", Label: "Likely real"}
	case model.ClassificationSuspicious:
		return Badge{Icon: "⚠️", Color: "#FFA500", Label: "Suspicious"}
	default:
		return Badge{Icon: "❌", Color: "#c00", Label: "Likely AI-generated"}
	}
}

// MarkerText is the text of an image badge, e.g. "⚠️ 42% likely AI".
func MarkerText(c model.Classification, result model.ScoreResult) string {
	return fmt.Sprintf("%s %d%% likely AI", Style(c).Icon, result.Percent())
}

func markerCSS(b Badge) string {
	return "position:absolute;top:5px;left:5px;z-index:9999;pointer-events:none;" +
		"background:#fff;border:1px solid black;padding:2px 6px;font-size:10px;" +
		"font-weight:bold;color:" + b.Color + ";"
}

const wrapCSS = "position:relative;display:inline-block"

const tooltipCSS = "position:absolute;margin-top:-30px;z-index:9999;pointer-events:none;" +
	"background:#fff;border:1px solid #000;padding:4px 6px;font-size:12px;color:#000;" +
	"box-shadow:0px 0px 4px rgba(0,0,0,0.3);border-radius:4px;"
