package view

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/a-h/templ"
	"golang.org/x/net/html"

	"github.com/vishanth10/supabase-traversaal/internal/action"
	"github.com/vishanth10/supabase-traversaal/internal/dashboard"
	"github.com/vishanth10/supabase-traversaal/internal/model"
)

// renderDoc はコンポーネントを描画してHTMLとしてパースする。
func renderDoc(t *testing.T, c templ.Component) (*html.Node, string) {
	t.Helper()
	var buf bytes.Buffer
	if err := c.Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	doc, err := html.Parse(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("html.Parse failed: %v", err)
	}
	return doc, buf.String()
}

// findAll は条件に一致する要素をすべて返す。
func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func byTag(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Data == tag }
}

func byID(id string) func(*html.Node) bool {
	return func(n *html.Node) bool { return attr(n, "id") == id }
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// listItems は指定IDのセクション内の<li>を返す。
func listItems(t *testing.T, doc *html.Node, sectionID string) []*html.Node {
	t.Helper()
	sections := findAll(doc, byID(sectionID))
	if len(sections) != 1 {
		t.Fatalf("section #%s count = %d, want 1", sectionID, len(sections))
	}
	return findAll(sections[0], byTag("li"))
}

func successSnapshot[T any](v T) action.Snapshot[T] {
	return action.Snapshot[T]{Status: action.StatusSuccess, Value: v}
}

func TestLoading_RendersPlaceholder(t *testing.T) {
	doc, _ := renderDoc(t, Loading())

	divs := findAll(doc, func(n *html.Node) bool { return attr(n, "class") == "loading" })
	if len(divs) != 1 || textOf(divs[0]) != "Loading..." {
		t.Errorf("expected one Loading... placeholder")
	}
}

func TestSignUpPage_RendersFormAndMessage(t *testing.T) {
	doc, _ := renderDoc(t, SignUpPage(SignUpForm{
		DisplayName: "Alice",
		Email:       "a@example.com",
		Message:     "Check your email for the confirmation link.",
		CSRFToken:   "tok",
	}))

	forms := findAll(doc, byTag("form"))
	if len(forms) != 1 || attr(forms[0], "action") != "/signup" || attr(forms[0], "method") != "post" {
		t.Fatalf("expected POST /signup form")
	}

	inputs := findAll(forms[0], byTag("input"))
	values := map[string]string{}
	for _, in := range inputs {
		values[attr(in, "name")] = attr(in, "value")
	}
	if values["csrf_token"] != "tok" || values["display_name"] != "Alice" || values["email"] != "a@example.com" {
		t.Errorf("input values = %v", values)
	}
	if _, ok := values["password"]; !ok {
		t.Error("password input missing")
	}

	msgs := findAll(doc, func(n *html.Node) bool { return attr(n, "class") == "message" })
	if len(msgs) != 1 || textOf(msgs[0]) != "Check your email for the confirmation link." {
		t.Error("confirmation message not rendered")
	}

	google := findAll(doc, func(n *html.Node) bool { return n.Data == "a" && attr(n, "href") == "/auth/google" })
	if len(google) != 1 {
		t.Error("Google sign-up link missing")
	}
}

func TestSignUpPage_EscapesProviderMessage(t *testing.T) {
	_, raw := renderDoc(t, SignUpPage(SignUpForm{Message: `Error: <script>alert(1)</script>`}))

	if strings.Contains(raw, "<script>alert(1)</script>") {
		t.Error("message must be escaped")
	}
}

func TestLoginPage_RendersForm(t *testing.T) {
	doc, _ := renderDoc(t, LoginPage(LoginForm{Email: "a@example.com", Message: "Invalid login credentials", CSRFToken: "tok"}))

	forms := findAll(doc, byTag("form"))
	if len(forms) != 1 || attr(forms[0], "action") != "/login" {
		t.Fatalf("expected POST /login form")
	}
	msgs := findAll(doc, func(n *html.Node) bool { return attr(n, "class") == "message" })
	if len(msgs) != 1 || textOf(msgs[0]) != "Invalid login credentials" {
		t.Error("provider message should be rendered verbatim")
	}
}

func TestLoginPage_NoMessage(t *testing.T) {
	doc, _ := renderDoc(t, LoginPage(LoginForm{}))

	if msgs := findAll(doc, func(n *html.Node) bool { return attr(n, "class") == "message" }); len(msgs) != 0 {
		t.Error("message paragraph should be omitted when empty")
	}
}

func TestCallbackErrorPage(t *testing.T) {
	doc, _ := renderDoc(t, CallbackErrorPage("Error: invalid flow state"))

	msgs := findAll(doc, func(n *html.Node) bool { return attr(n, "class") == "message" })
	if len(msgs) != 1 || textOf(msgs[0]) != "Error: invalid flow state" {
		t.Error("error message not rendered")
	}
}

func TestDashboardPage_WelcomeAndServiceSelect(t *testing.T) {
	doc, _ := renderDoc(t, DashboardPage(DashboardData{
		Email:     "a@example.com",
		CSRFToken: "tok",
		Board:     dashboard.View{Service: model.ServiceNotion},
	}))

	h1s := findAll(doc, byTag("h1"))
	found := false
	for _, h := range h1s {
		if textOf(h) == "Welcome, a@example.com" {
			found = true
		}
	}
	if !found {
		t.Error("welcome heading missing")
	}

	options := findAll(doc, byTag("option"))
	if len(options) != 4 {
		t.Fatalf("options = %d, want 4", len(options))
	}
	for _, o := range options {
		selected := hasAttr(o, "selected")
		if (attr(o, "value") == "NOTION") != selected {
			t.Errorf("option %s selected = %v", attr(o, "value"), selected)
		}
	}
	if textOf(options[3]) != "OneDrive" {
		t.Errorf("label = %q, want OneDrive", textOf(options[3]))
	}

	for _, f := range findAll(doc, byTag("form")) {
		tokens := findAll(f, func(n *html.Node) bool { return attr(n, "name") == "csrf_token" })
		if len(tokens) != 1 || attr(tokens[0], "value") != "tok" {
			t.Errorf("form %s should carry the CSRF token", attr(f, "action"))
		}
	}
}

func TestDashboardPage_DataSourcesListOneItem(t *testing.T) {
	doc, _ := renderDoc(t, DashboardPage(DashboardData{
		Board: dashboard.View{
			DataSources: successSnapshot([]model.DataSource{{
				ID:         model.NewNumericID(1),
				ExternalID: "ext-1",
				Type:       "GOOGLE_DRIVE",
				SyncStatus: "READY",
				CreatedAt:  "2024-06-01",
				UpdatedAt:  "2024-06-02",
			}}),
		},
	}))

	items := listItems(t, doc, "data-sources")
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	want := "ID: 1, External ID: ext-1, Type: GOOGLE_DRIVE, Sync Status: READY, Created At: 2024-06-01, Updated At: 2024-06-02"
	if got := textOf(items[0]); got != want {
		t.Errorf("item = %q, want %q", got, want)
	}
}

func TestDashboardPage_UploadedFilesAndSearchLinks(t *testing.T) {
	doc, _ := renderDoc(t, DashboardPage(DashboardData{
		Board: dashboard.View{
			UploadedFiles: successSnapshot([]model.UploadedFile{{
				ID:                           model.NewNumericID(5),
				OrganizationSuppliedUserID:   "user-1",
				OrganizationUserDataSourceID: model.NewNumericID(9),
				ExternalURL:                  "https://drive.google.com/file/d/abc",
			}}),
			Search: successSnapshot([]model.SearchResult{{
				Source:       "report.pdf",
				SourceURL:    "javascript:alert(1)",
				SourceType:   "PDF",
				PresignedURL: "https://s3.example.com/report.pdf",
				Tags:         json.RawMessage(`{"team":"finance"}`),
			}}),
		},
	}))

	uploaded := listItems(t, doc, "uploaded-files")
	if len(uploaded) != 1 {
		t.Fatalf("uploaded items = %d, want 1", len(uploaded))
	}
	if !strings.HasPrefix(textOf(uploaded[0]), "ID: 5, Organization Supplied User ID: user-1, Organization User Data Source ID: 9, External URL: ") {
		t.Errorf("uploaded item = %q", textOf(uploaded[0]))
	}
	links := findAll(uploaded[0], byTag("a"))
	if len(links) != 1 || attr(links[0], "target") != "_blank" || attr(links[0], "rel") != "noopener noreferrer" {
		t.Error("external URL should open in a new tab with noopener")
	}

	results := listItems(t, doc, "search")
	if len(results) != 1 {
		t.Fatalf("search items = %d, want 1", len(results))
	}
	if !strings.HasSuffix(textOf(results[0]), `Tags: {"team":"finance"}`) {
		t.Errorf("search item = %q", textOf(results[0]))
	}
	resultLinks := findAll(results[0], byTag("a"))
	if len(resultLinks) != 1 || attr(resultLinks[0], "href") != "https://s3.example.com/report.pdf" {
		t.Errorf("only the http(s) URL should be linked, got %d links", len(resultLinks))
	}
}

func TestDashboardPage_AlertOpenURLAndEvents(t *testing.T) {
	_, raw := renderDoc(t, DashboardPage(DashboardData{
		Board: dashboard.View{
			Alert:   dashboard.FailureAlert,
			OpenURL: "https://accounts.google.com/o/oauth2/auth?a=1&b=</script>",
		},
	}))

	if !strings.Contains(raw, `role="alert">Failed to complete the request. Please try again.</div>`) {
		t.Error("alert box missing")
	}
	if !strings.Contains(raw, `window.alert("Failed to complete the request. Please try again.")`) {
		t.Error("blocking alert script missing")
	}
	if !strings.Contains(raw, `window.open("https://accounts.google.com/o/oauth2/auth?a=1\u0026b=\u003c/script\u003e", "_blank")`) {
		t.Errorf("window.open script missing or not escaped:\n%s", raw)
	}
	if !strings.Contains(raw, `new EventSource("/api/session/events")`) {
		t.Error("session events subscription missing")
	}
}

func TestDashboardPage_DisablesButtonsWhileLoading(t *testing.T) {
	doc, _ := renderDoc(t, DashboardPage(DashboardData{
		Board: dashboard.View{Files: action.Snapshot[[]model.RemoteFile]{Status: action.StatusLoading}},
	}))

	for _, b := range findAll(doc, byTag("button")) {
		if textOf(b) == "Logout" {
			if hasAttr(b, "disabled") {
				t.Error("logout should stay enabled")
			}
			continue
		}
		if !hasAttr(b, "disabled") {
			t.Errorf("button %q should be disabled while loading", textOf(b))
		}
	}
}

func TestDashboardPage_NoScriptsWithoutAlertOrURL(t *testing.T) {
	_, raw := renderDoc(t, DashboardPage(DashboardData{}))

	if strings.Contains(raw, "window.open(") || strings.Contains(raw, "window.alert(") {
		t.Error("no one-shot scripts expected")
	}
}

func TestDashboardPage_AlertScriptEscapesQuotes(t *testing.T) {
	_, raw := renderDoc(t, DashboardPage(DashboardData{
		Board: dashboard.View{Alert: `"); document.cookie=("`},
	}))

	if strings.Contains(raw, `window.alert(""); document.cookie=("")`) {
		t.Errorf("alert text must stay inside the string literal:\n%s", raw)
	}
	if !strings.Contains(raw, `window.alert("\"); document.cookie=(\"")`) {
		t.Errorf("alert script not JS-escaped:\n%s", raw)
	}
}
