package templates

import (
	"context"
	"encoding/json"
	"io"

	"github.com/a-h/templ"
)

// Page configures the filter controls.
type Page struct {
	Regions    []string
	MinYear    int
	MaxYear    int
	DefaultTop int
	MinTop     int
	MaxTop     int
}

type pageSignals struct {
	Region   string   `json:"regiao"`
	AllYears bool     `json:"allYears"`
	Year     int      `json:"ano"`
	Sellers  []string `json:"vendedores"`
	Top      int      `json:"top"`
	Tab      string   `json:"tab"`
	Charts   struct{} `json:"charts"`
}

type pageView struct {
	Page
	Signals   string
	NoSellers []optionView
	Banner    bannerView
}

// Dashboard is the full page. Every control change re-runs /sse/dashboard,
// which patches the fragments and replaces the charts signal.
func Dashboard(p Page) templ.Component {
	signals, err := json.Marshal(pageSignals{
		Region:   p.Regions[0],
		AllYears: true,
		Year:     p.MaxYear,
		Sellers:  []string{},
		Top:      p.DefaultTop,
		Tab:      "revenue",
	})
	if err != nil {
		return templ.ComponentFunc(func(context.Context, io.Writer) error { return err })
	}
	return view("dashboard", pageView{Page: p, Signals: string(signals)})
}
