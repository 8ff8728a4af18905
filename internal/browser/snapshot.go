package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/consentinel/api/schemas"
)

// Snapshot is a PageDriver over a parsed HTML document. Used by the inspect
// command and by tests; there is no live layout, so visibility is derived
// from markup alone and geometry comes from defaults or style hints. Clicks
// and control mutations update in-memory state so multi-step flows can be
// exercised offline.
type Snapshot struct {
	mu      sync.Mutex
	doc     *html.Node
	page    schemas.PageContext
	refs    map[string]*html.Node
	nextRef int

	hidden  map[string]bool
	checked map[string]bool
	clicked []string
}

// NewSnapshot parses raw HTML into an offline driver.
func NewSnapshot(raw string, page schemas.PageContext) (*Snapshot, error) {
	doc, err := htmlquery.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	s := &Snapshot{
		doc:     doc,
		page:    page,
		refs:    make(map[string]*html.Node),
		hidden:  make(map[string]bool),
		checked: make(map[string]bool),
	}
	if s.page.ElementCount == 0 {
		s.page.ElementCount = countElements(doc)
		s.page.IframeCount = len(htmlquery.Find(doc, "//iframe"))
	}
	return s, nil
}

// Clicked returns the refs clicked so far, in order.
func (s *Snapshot) Clicked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.clicked))
	copy(out, s.clicked)
	return out
}

// Scan implements schemas.PageDriver. Candidate regions are containers whose
// id/class naming or dialog role suggests a consent surface.
func (s *Snapshot) Scan(ctx context.Context) ([]schemas.ElementView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var views []schemas.ElementView
	var roots []*html.Node
	for _, node := range htmlquery.Find(s.doc, "//div | //section | //aside | //footer | //dialog") {
		if !s.candidateNode(node) {
			continue
		}
		if containedIn(node, roots) {
			continue
		}
		roots = append(roots, node)
	}
	for _, node := range roots {
		view := s.elementView(node)
		if s.hidden[view.Ref] {
			continue
		}
		views = append(views, view)
	}
	return views, nil
}

// FindActions implements schemas.PageDriver.
func (s *Snapshot) FindActions(ctx context.Context, scope string) ([]schemas.ActionElement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	root := s.doc
	if scope != "" {
		node, ok := s.resolve(scope)
		if !ok {
			return nil, nil
		}
		root = node
	}
	var actions []schemas.ActionElement
	for _, node := range findActionNodes(root) {
		actions = append(actions, s.actionView(node))
	}
	return actions, nil
}

// Controls implements schemas.PageDriver.
func (s *Snapshot) Controls(ctx context.Context, scope string) ([]schemas.Control, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	root := s.doc
	if scope != "" {
		node, ok := s.resolve(scope)
		if !ok {
			return nil, nil
		}
		root = node
	}

	var controls []schemas.Control
	for _, node := range htmlquery.Find(root, ".//input[@type='checkbox'] | .//*[@role='switch'] | .//*[@role='checkbox'] | .//select") {
		ref := s.refFor(node)
		kind := controlKind(node)
		checked, overridden := s.checked[ref]
		if !overridden {
			checked = attrPresent(node, "checked") || htmlquery.SelectAttr(node, "aria-checked") == "true"
		}
		var options []string
		if strings.EqualFold(nodeTag(node), "select") {
			for _, opt := range htmlquery.Find(node, ".//option") {
				options = append(options, strings.TrimSpace(htmlquery.InnerText(opt)))
			}
		}
		controls = append(controls, schemas.Control{
			Ref:        ref,
			Kind:       kind,
			Label:      s.labelFor(node),
			Checked:    checked,
			Options:    options,
			Attributes: attrMap(node),
		})
	}
	return controls, nil
}

// Click implements schemas.PageDriver. A clicked action that targets a
// container with a dismiss-style naming hides the nearest candidate root so
// bannerGone checks behave like a live page.
func (s *Snapshot) Click(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.resolve(ref)
	if !ok {
		return fmt.Errorf("click %q: %w", ref, schemas.ErrNodeDetached)
	}
	s.clicked = append(s.clicked, ref)

	// Dismissal heuristic: clicking a button inside a candidate hides that
	// candidate, matching what consent scripts do on accept/reject.
	for p := node; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && s.candidateNode(p) {
			s.hidden[s.refFor(p)] = true
			break
		}
	}
	return nil
}

// SetChecked implements schemas.PageDriver.
func (s *Snapshot) SetChecked(ctx context.Context, ref string, checked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resolve(ref); !ok {
		return fmt.Errorf("set checked %q: %w", ref, schemas.ErrNodeDetached)
	}
	s.checked[ref] = checked
	return nil
}

// SelectOption implements schemas.PageDriver.
func (s *Snapshot) SelectOption(ctx context.Context, ref string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.resolve(ref)
	if !ok {
		return fmt.Errorf("select option on %q: %w", ref, schemas.ErrNodeDetached)
	}
	for _, opt := range htmlquery.Find(node, ".//option") {
		text := strings.TrimSpace(htmlquery.InnerText(opt))
		if text == value || htmlquery.SelectAttr(opt, "value") == value {
			return nil
		}
	}
	return fmt.Errorf("select option on %q: no matching option %q", ref, value)
}

// Visible implements schemas.PageDriver.
func (s *Snapshot) Visible(ctx context.Context, ref string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.resolve(ref)
	if !ok {
		return false, nil
	}
	if s.hidden[s.refFor(node)] {
		return false, nil
	}
	return markupVisible(node), nil
}

// Attached implements schemas.PageDriver.
func (s *Snapshot) Attached(ctx context.Context, ref string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.resolve(ref)
	return ok, nil
}

// Page implements schemas.PageDriver.
func (s *Snapshot) Page(ctx context.Context) (schemas.PageContext, error) {
	return s.page, nil
}

// -- node helpers --

var candidateNamePattern = []string{
	"cookie", "consent", "gdpr", "privacy", "cmp", "banner", "notice",
	"didomi", "onetrust", "usercentrics", "sp_message", "cky", "klaro",
	"borlabs", "cmplz",
}

func (s *Snapshot) candidateNode(node *html.Node) bool {
	if node.Type != html.ElementNode {
		return false
	}
	if !markupVisible(node) {
		return false
	}
	tag := nodeTag(node)
	role := strings.ToLower(htmlquery.SelectAttr(node, "role"))
	if tag == "dialog" || role == "dialog" || role == "alertdialog" {
		return true
	}
	name := strings.ToLower(htmlquery.SelectAttr(node, "id") + " " + htmlquery.SelectAttr(node, "class"))
	for _, marker := range candidateNamePattern {
		if strings.Contains(name, marker) {
			return true
		}
	}
	style := strings.ToLower(htmlquery.SelectAttr(node, "style"))
	return strings.Contains(style, "position:fixed") || strings.Contains(style, "position: fixed") ||
		strings.Contains(style, "position:sticky") || strings.Contains(style, "position: sticky")
}

func (s *Snapshot) elementView(node *html.Node) schemas.ElementView {
	style := strings.ToLower(htmlquery.SelectAttr(node, "style"))
	var ancestors []string
	depth := 0
	for p := node.Parent; p != nil; p = p.Parent {
		if p.Type != html.ElementNode || nodeTag(p) == "html" {
			continue
		}
		depth++
		if len(ancestors) < 3 {
			name := strings.TrimSpace(htmlquery.SelectAttr(p, "id") + " " + htmlquery.SelectAttr(p, "class"))
			if name != "" {
				ancestors = append(ancestors, name)
			}
		}
	}

	var actions []schemas.ActionElement
	for _, a := range findActionNodes(node) {
		actions = append(actions, s.actionView(a))
	}

	return schemas.ElementView{
		Ref:        s.refFor(node),
		Tag:        nodeTag(node),
		Text:       collapseSpace(htmlquery.InnerText(node)),
		Attributes: attrMap(node),
		// A static document has no layout; a plausible banner strip keeps
		// the size gate from rejecting every snapshot candidate.
		Geometry: schemas.Geometry{Width: 1280, Height: 240},
		Visible:  true,
		Position: schemas.PositionHints{
			Fixed:          strings.Contains(style, "fixed"),
			Sticky:         strings.Contains(style, "sticky"),
			ViewportWidth:  1280,
			ViewportHeight: 800,
		},
		AncestorNames: ancestors,
		NestingDepth:  depth,
		Actions:       actions,
	}
}

func (s *Snapshot) actionView(node *html.Node) schemas.ActionElement {
	return schemas.ActionElement{
		Ref:        s.refFor(node),
		Kind:       controlKind(node),
		Tag:        nodeTag(node),
		Text:       collapseSpace(htmlquery.InnerText(node)),
		AriaLabel:  htmlquery.SelectAttr(node, "aria-label"),
		Title:      htmlquery.SelectAttr(node, "title"),
		Attributes: attrMap(node),
		Visible:    markupVisible(node),
	}
}

// refFor returns the stable selector for a node, assigning one on first use.
func (s *Snapshot) refFor(node *html.Node) string {
	for ref, n := range s.refs {
		if n == node {
			return ref
		}
	}
	s.nextRef++
	ref := fmt.Sprintf(`[data-cst-ref="%d"]`, s.nextRef)
	s.refs[ref] = node
	return ref
}

// resolve maps a ref back to a node. Plain CSS id/attribute selectors from
// vendor tables are resolved against the document best-effort.
func (s *Snapshot) resolve(ref string) (*html.Node, bool) {
	if node, ok := s.refs[ref]; ok {
		return node, true
	}
	if xpath, ok := selectorToXPath(ref); ok {
		if node := htmlquery.FindOne(s.doc, xpath); node != nil {
			return node, true
		}
	}
	return nil, false
}

// selectorToXPath translates the small selector subset the vendor tables
// use: #id, .class and [attr="value"].
func selectorToXPath(sel string) (string, bool) {
	sel = strings.TrimSpace(sel)
	switch {
	case strings.HasPrefix(sel, "#"):
		return fmt.Sprintf(`//*[@id=%q]`, sel[1:]), true
	case strings.HasPrefix(sel, "."):
		return fmt.Sprintf(`//*[contains(concat(' ', normalize-space(@class), ' '), ' %s ')]`, sel[1:]), true
	case strings.HasPrefix(sel, "[") && strings.HasSuffix(sel, "]"):
		body := sel[1 : len(sel)-1]
		parts := strings.SplitN(body, "=", 2)
		if len(parts) == 1 {
			return fmt.Sprintf(`//*[@%s]`, parts[0]), true
		}
		value := strings.Trim(parts[1], `"'`)
		return fmt.Sprintf(`//*[@%s=%q]`, parts[0], value), true
	default:
		return "", false
	}
}

func findActionNodes(root *html.Node) []*html.Node {
	return htmlquery.Find(root,
		".//button | .//a[@href] | .//*[@role='button'] | .//*[@role='switch'] | .//*[@role='checkbox'] | .//input[@type='button'] | .//input[@type='submit'] | .//input[@type='checkbox'] | .//select")
}

func controlKind(node *html.Node) schemas.ActionKind {
	tag := nodeTag(node)
	role := strings.ToLower(htmlquery.SelectAttr(node, "role"))
	typ := strings.ToLower(htmlquery.SelectAttr(node, "type"))
	switch {
	case role == "switch":
		return schemas.ActionToggle
	case typ == "checkbox" || role == "checkbox":
		return schemas.ActionCheckbox
	case tag == "select":
		return schemas.ActionDropdown
	case tag == "a":
		return schemas.ActionLink
	default:
		return schemas.ActionButton
	}
}

func (s *Snapshot) labelFor(node *html.Node) string {
	if id := htmlquery.SelectAttr(node, "id"); id != "" {
		if label := htmlquery.FindOne(s.doc, fmt.Sprintf(`//label[@for=%q]`, id)); label != nil {
			return collapseSpace(htmlquery.InnerText(label))
		}
	}
	for p := node.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && nodeTag(p) == "label" {
			return collapseSpace(htmlquery.InnerText(p))
		}
	}
	if aria := htmlquery.SelectAttr(node, "aria-label"); aria != "" {
		return aria
	}
	for p := node.Parent; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		switch nodeTag(p) {
		case "li", "tr", "fieldset", "div":
			if text := collapseSpace(htmlquery.InnerText(p)); text != "" {
				if len(text) > 200 {
					text = text[:200]
				}
				return text
			}
		}
	}
	return ""
}

func markupVisible(node *html.Node) bool {
	for p := node; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		if attrPresent(p, "hidden") {
			return false
		}
		style := strings.ReplaceAll(strings.ToLower(htmlquery.SelectAttr(p, "style")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
	}
	return true
}

func attrPresent(node *html.Node, name string) bool {
	for _, a := range node.Attr {
		if a.Key == name {
			return true
		}
	}
	return false
}

func attrMap(node *html.Node) map[string]string {
	out := make(map[string]string, len(node.Attr))
	for _, a := range node.Attr {
		out[a.Key] = a.Val
	}
	return out
}

func nodeTag(node *html.Node) string {
	return strings.ToLower(node.Data)
}

func containedIn(node *html.Node, roots []*html.Node) bool {
	for _, root := range roots {
		for p := node.Parent; p != nil; p = p.Parent {
			if p == root {
				return true
			}
		}
	}
	return false
}

func countElements(doc *html.Node) int {
	count := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			count++
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return count
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
