package view

import (
	"github.com/a-h/templ"

	"github.com/vishanth10/supabase-traversaal/internal/dashboard"
	"github.com/vishanth10/supabase-traversaal/internal/model"
)

// DashboardData はダッシュボード画面の表示内容。
type DashboardData struct {
	Email     string
	CSRFToken string
	Board     dashboard.View
}

// serviceOption はデータソース選択肢の1件。
type serviceOption struct {
	Value    string
	Label    string
	Selected bool
}

// Options はデータソースの選択肢を返す。選択中のサービスにSelectedを立てる。
func (d DashboardData) Options() []serviceOption {
	services := model.Services()
	options := make([]serviceOption, 0, len(services))
	for _, svc := range services {
		options = append(options, serviceOption{
			Value:    string(svc),
			Label:    svc.Label(),
			Selected: svc == d.Board.Service,
		})
	}
	return options
}

// DashboardPage はダッシュボード画面。
func DashboardPage(d DashboardData) templ.Component {
	return render(dashboardTemplate, "Dashboard", d)
}
