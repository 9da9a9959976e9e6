package view

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/DeafMist/policy-radar/internal/models"
)

// ErrorMessage is shown for every failed lookup; details stay in the logs.
const ErrorMessage = "获取政策信息失败，请稍后重试。"

// InvalidDateMessage is shown when the requested date is not YYYY-MM-DD.
const InvalidDateMessage = "日期格式无效，请使用 YYYY-MM-DD 格式。"

//go:embed templates/*.html
var templateFS embed.FS

// Results is the view model of the results panel. Exactly one status is
// active at a time.
type Results struct {
	Status   models.LoadingStatus
	Date     string
	Policies []models.PolicyItem
	Sources  []models.GroundingSource
	Message  string
}

// Empty reports a successful lookup that found nothing.
func (r Results) Empty() bool {
	return r.Status == models.StatusSuccess && len(r.Policies) == 0
}

// Idle is the panel before any lookup started.
func Idle(date string) Results {
	return Results{Status: models.StatusIdle, Date: date}
}

// Loading is the panel while a lookup is in flight.
func Loading(date string) Results {
	return Results{Status: models.StatusLoading, Date: date}
}

// Failed is the error panel with a user-facing message.
func Failed(date, message string) Results {
	return Results{Status: models.StatusError, Date: date, Message: message}
}

// NewResults maps a finished lookup to its panel. Any error wins over resp.
func NewResults(date string, resp *models.SearchResponse, err error) Results {
	if err != nil {
		return Failed(date, ErrorMessage)
	}
	res := Results{Status: models.StatusSuccess, Date: date}
	if resp != nil {
		res.Policies = resp.Policies
		res.Sources = resp.Sources
	}
	return res
}

// Page is the view model of the whole document.
type Page struct {
	Date    string
	Year    int
	Initial Results
	Loading Results
	Failed  Results
}

// NewPage builds the page for date with the panel in its idle state.
func NewPage(date string, year int) Page {
	return Page{
		Date:    date,
		Year:    year,
		Initial: Idle(date),
		Loading: Loading(date),
		Failed:  Failed(date, ErrorMessage),
	}
}

// Renderer executes the embedded templates.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("view").Funcs(template.FuncMap{
		"inc": func(i int) int { return i + 1 },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Page writes the full document.
func (r *Renderer) Page(w io.Writer, p Page) error {
	return r.tmpl.ExecuteTemplate(w, "page", p)
}

// Results writes the results panel fragment.
func (r *Renderer) Results(w io.Writer, res Results) error {
	return r.tmpl.ExecuteTemplate(w, "results", res)
}
