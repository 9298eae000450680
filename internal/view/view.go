// Package view はサーバーサイドで描画するHTMLページを提供する。
package view

import (
	"embed"
	"html/template"

	"github.com/a-h/templ"

	"github.com/vishanth10/supabase-traversaal/internal/security"
)

//go:embed templates/*.html
var templatesFS embed.FS

var funcs = template.FuncMap{
	// safeLink はhttp/httpsのURLだけをリンクにする。
	"safeLink": security.SafeLink,
}

var (
	loadingTemplate       = parsePage("loading.html")
	signUpTemplate        = parsePage("signup.html")
	loginTemplate         = parsePage("login.html")
	callbackErrorTemplate = parsePage("callback_error.html")
	dashboardTemplate     = parsePage("dashboard.html")
)

// parsePage は共通レイアウトとページ本体を組み合わせたテンプレートを返す。
func parsePage(name string) *template.Template {
	return template.Must(template.New("layout.html").Funcs(funcs).ParseFS(templatesFS,
		"templates/layout.html",
		"templates/partials.html",
		"templates/"+name,
	))
}

// page はレイアウトに渡す値。
type page struct {
	Title string
	Page  any
}

func render(t *template.Template, title string, data any) templ.Component {
	return templ.FromGoHTML(t, page{Title: title, Page: data})
}

// Loading はセッション確認中に表示するプレースホルダー。
func Loading() templ.Component {
	return render(loadingTemplate, "Loading", nil)
}

// SignUpForm はサインアップ画面の表示内容。
type SignUpForm struct {
	DisplayName string
	Email       string
	Message     string
	CSRFToken   string
}

// LoginForm はログイン画面の表示内容。
type LoginForm struct {
	Email     string
	Message   string
	CSRFToken string
}

// SignUpPage はサインアップ画面。
func SignUpPage(form SignUpForm) templ.Component {
	return render(signUpTemplate, "Sign Up", form)
}

// LoginPage はログイン画面。
func LoginPage(form LoginForm) templ.Component {
	return render(loginTemplate, "Login", form)
}

// CallbackErrorPage はOAuthコールバックの処理に失敗したときの画面。
func CallbackErrorPage(message string) templ.Component {
	return render(callbackErrorTemplate, "Sign-in failed", message)
}
