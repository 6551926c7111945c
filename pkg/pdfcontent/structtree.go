package pdfcontent

import (
	"strings"

	"github.com/ledongthuc/pdf"
)

// maxStructDepth bounds recursion on malformed or cyclic trees.
const maxStructDepth = 64

type structTree struct {
	roleMap       pdf.Value
	structParents map[int64]int
	scans         map[int]*pageScan

	headings map[int][]Heading
	tables   map[int][][][]string
	figures  map[int][]Image
	links    map[int][]Link
}

// node is a structure element after its kids have been resolved.
type node struct {
	role     string
	v        pdf.Value
	page     int
	mcids    map[int][]int64 // page -> marked content ids, including descendants
	children []*node
	objrs    []pdf.Value
}

func walkStructTree(treeRoot pdf.Value, structParents map[int64]int, scans map[int]*pageScan) *structTree {
	t := &structTree{
		roleMap:       treeRoot.Key("RoleMap"),
		structParents: structParents,
		scans:         scans,
		headings:      make(map[int][]Heading),
		tables:        make(map[int][][][]string),
		figures:       make(map[int][]Image),
		links:         make(map[int][]Link),
	}
	rootNode := &node{mcids: make(map[int][]int64)}
	t.kids(rootNode, treeRoot.Key("K"), 0, 0)
	t.collect(rootNode)
	return t
}

func (t *structTree) pageOf(pg pdf.Value, inherited int) int {
	if pg.IsNull() {
		return inherited
	}
	if sp := pg.Key("StructParents"); sp.Kind() == pdf.Integer {
		if n, ok := t.structParents[sp.Int64()]; ok {
			return n
		}
	}
	return inherited
}

// role resolves custom structure types through the RoleMap.
func (t *structTree) role(v pdf.Value) string {
	r := v.Key("S").Name()
	for i := 0; i < 8; i++ {
		mapped := t.roleMap.Key(r)
		if mapped.Kind() != pdf.Name || mapped.Name() == r {
			break
		}
		r = mapped.Name()
	}
	return r
}

func (t *structTree) element(v pdf.Value, page, depth int) *node {
	n := &node{
		role:  t.role(v),
		v:     v,
		page:  t.pageOf(v.Key("Pg"), page),
		mcids: make(map[int][]int64),
	}
	t.kids(n, v.Key("K"), n.page, depth+1)
	return n
}

func (t *structTree) kids(parent *node, k pdf.Value, page, depth int) {
	if depth > maxStructDepth {
		return
	}
	switch k.Kind() {
	case pdf.Integer:
		parent.mcids[page] = append(parent.mcids[page], k.Int64())
	case pdf.Array:
		for i := 0; i < k.Len(); i++ {
			t.kids(parent, k.Index(i), page, depth+1)
		}
	case pdf.Dict:
		switch k.Key("Type").Name() {
		case "MCR":
			p := t.pageOf(k.Key("Pg"), page)
			if id := k.Key("MCID"); id.Kind() == pdf.Integer {
				parent.mcids[p] = append(parent.mcids[p], id.Int64())
			}
		case "OBJR":
			parent.objrs = append(parent.objrs, k.Key("Obj"))
		default:
			if k.Key("S").IsNull() {
				return
			}
			child := t.element(k, page, depth)
			parent.children = append(parent.children, child)
			for p, ids := range child.mcids {
				parent.mcids[p] = append(parent.mcids[p], ids...)
			}
		}
	}
}

// primaryPage is where an element mostly lives: its own /Pg or the first
// page its content appears on.
func (n *node) primaryPage() int {
	if n.page > 0 {
		return n.page
	}
	best := 0
	for p := range n.mcids {
		if best == 0 || p < best {
			best = p
		}
	}
	return best
}

func (t *structTree) text(n *node) string {
	if at := strings.TrimSpace(n.v.Key("ActualText").Text()); at != "" {
		return at
	}
	var parts []string
	for p, ids := range n.mcids {
		if scan := t.scans[p]; scan != nil {
			if s := scan.text(ids); s != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, " ")
}

func (t *structTree) collect(n *node) {
	for _, c := range n.children {
		page := c.primaryPage()
		switch {
		case isHeading(c.role):
			if page > 0 {
				t.headings[page] = append(t.headings[page], Heading{Level: headingLevel(c.role), Text: t.text(c)})
			}
		case c.role == "Figure":
			if page > 0 {
				t.figures[page] = append(t.figures[page], t.figure(c, page))
			}
			continue
		case c.role == "Table":
			if page > 0 {
				t.tables[page] = append(t.tables[page], t.table(c))
			}
			continue
		case c.role == "Link":
			if page > 0 {
				t.links[page] = append(t.links[page], t.link(c))
			}
			continue
		}
		t.collect(c)
	}
}

func isHeading(role string) bool {
	return len(role) == 2 && role[0] == 'H' && role[1] >= '1' && role[1] <= '6'
}

func headingLevel(role string) int {
	return int(role[1] - '0')
}

func (t *structTree) figure(n *node, page int) Image {
	img := Image{Alt: strings.TrimSpace(n.v.Key("Alt").Text())}
	if img.Alt == "" {
		img.Alt = strings.TrimSpace(n.v.Key("ActualText").Text())
	}
	for _, c := range n.children {
		if c.role == "Caption" {
			img.Caption = t.text(c)
			break
		}
	}
	if scan := t.scans[page]; scan != nil {
		img.Coverage = scan.maxCoverage(n.mcids[page])
		if img.Coverage == 0 {
			img.Coverage = coverage(bboxArea(n.v.Key("A")), scan.area)
		}
	}
	return img
}

// bboxArea reads a Layout BBox attribute; A may be one attribute dict or an array.
func bboxArea(attrs pdf.Value) float64 {
	check := func(a pdf.Value) float64 {
		box := a.Key("BBox")
		if box.Kind() != pdf.Array || box.Len() != 4 {
			return 0
		}
		return abs((box.Index(2).Float64() - box.Index(0).Float64()) * (box.Index(3).Float64() - box.Index(1).Float64()))
	}
	if attrs.Kind() == pdf.Array {
		for i := 0; i < attrs.Len(); i++ {
			if a := check(attrs.Index(i)); a > 0 {
				return a
			}
		}
		return 0
	}
	return check(attrs)
}

func (t *structTree) table(n *node) [][]string {
	var grid [][]string
	var rows func(*node)
	rows = func(parent *node) {
		for _, c := range parent.children {
			switch c.role {
			case "TR":
				var row []string
				for _, cell := range c.children {
					switch cell.role {
					case "TH":
						txt := t.text(cell)
						if txt == "" {
							// a tagged header cell is a header even when its
							// text could not be decoded
							txt = "TH"
						}
						row = append(row, txt)
					case "TD":
						row = append(row, t.text(cell))
					}
				}
				grid = append(grid, row)
			case "THead", "TBody", "TFoot":
				rows(c)
			}
		}
	}
	rows(n)
	return grid
}

func (t *structTree) link(n *node) Link {
	l := Link{Text: t.text(n)}
	for _, obj := range n.objrs {
		if obj.Key("Subtype").Name() == "Link" {
			l.Target = linkTarget(obj)
			if l.Text == "" {
				l.Text = strings.TrimSpace(obj.Key("Contents").Text())
			}
			break
		}
	}
	return l
}
