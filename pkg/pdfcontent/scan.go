package pdfcontent

import (
	"strings"

	"github.com/ledongthuc/pdf"
)

// pageScan is what one pass over a page's content stream yields: the text of
// each marked-content sequence and where image XObjects were painted.
type pageScan struct {
	area       float64
	mcidText   map[int64]*strings.Builder
	placements []placement
}

type placement struct {
	name     string
	mcid     int64 // -1 when painted outside marked content
	coverage float64
}

// matrix is a PDF transformation matrix [a b c d e f].
type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

// then returns m applied before n, the order cm uses: CTM' = m x CTM.
func (m matrix) then(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

// unitArea is the area the unit square covers under m.
func (m matrix) unitArea() float64 {
	return abs(m[0]*m[3] - m[1]*m[2])
}

func scanPage(page pdf.Page) (scan *pageScan) {
	scan = &pageScan{
		area:     mediaBoxArea(page.V),
		mcidText: make(map[int64]*strings.Builder),
	}
	defer func() {
		// keep whatever was collected before a malformed operator
		_ = recover()
	}()

	resources := page.Resources()
	xobjects := resources.Key("XObject")
	properties := resources.Key("Properties")

	fonts := make(map[string]pdf.TextEncoding)
	var enc pdf.TextEncoding
	ctm := identity
	var ctmStack []matrix
	var mcStack []int64

	current := func() int64 {
		for i := len(mcStack) - 1; i >= 0; i-- {
			if mcStack[i] >= 0 {
				return mcStack[i]
			}
		}
		return -1
	}
	emit := func(raw string) {
		id := current()
		if id < 0 {
			return
		}
		s := raw
		if enc != nil {
			s = enc.Decode(raw)
		}
		b, ok := scan.mcidText[id]
		if !ok {
			b = &strings.Builder{}
			scan.mcidText[id] = b
		}
		b.WriteString(s)
	}
	space := func() {
		if b, ok := scan.mcidText[current()]; ok && b.Len() > 0 {
			b.WriteByte(' ')
		}
	}

	do := func(stk *pdf.Stack, op string) {
		n := stk.Len()
		args := make([]pdf.Value, n)
		for i := n - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}

		switch op {
		case "q":
			ctmStack = append(ctmStack, ctm)
		case "Q":
			if len(ctmStack) > 0 {
				ctm = ctmStack[len(ctmStack)-1]
				ctmStack = ctmStack[:len(ctmStack)-1]
			}
		case "cm":
			if n == 6 {
				var m matrix
				for i := range m {
					m[i] = args[i].Float64()
				}
				ctm = m.then(ctm)
			}
		case "BDC":
			id := int64(-1)
			if n == 2 {
				props := args[1]
				if props.Kind() == pdf.Name {
					props = properties.Key(props.Name())
				}
				if mcid := props.Key("MCID"); mcid.Kind() == pdf.Integer {
					id = mcid.Int64()
				}
			}
			mcStack = append(mcStack, id)
		case "BMC":
			mcStack = append(mcStack, -1)
		case "EMC":
			if len(mcStack) > 0 {
				mcStack = mcStack[:len(mcStack)-1]
			}
		case "Tf":
			if n == 2 {
				name := args[0].Name()
				e, ok := fonts[name]
				if !ok {
					e = page.Font(name).Encoder()
					fonts[name] = e
				}
				enc = e
			}
		case "Tj", "'":
			if n >= 1 {
				emit(args[n-1].RawString())
			}
		case "\"":
			if n == 3 {
				emit(args[2].RawString())
			}
		case "TJ":
			if n == 1 {
				arr := args[0]
				for i := 0; i < arr.Len(); i++ {
					el := arr.Index(i)
					switch el.Kind() {
					case pdf.String:
						emit(el.RawString())
					case pdf.Integer, pdf.Real:
						// large negative kerning is how many producers encode a space
						if el.Float64() < -200 {
							space()
						}
					}
				}
			}
		case "Td", "TD", "T*", "ET":
			space()
		case "Do":
			if n == 1 {
				name := args[0].Name()
				if xobjects.Key(name).Key("Subtype").Name() == "Image" {
					scan.placements = append(scan.placements, placement{
						name:     name,
						mcid:     current(),
						coverage: coverage(ctm.unitArea(), scan.area),
					})
				}
			}
		}
	}

	contents := page.V.Key("Contents")
	if contents.Kind() == pdf.Array {
		for i := 0; i < contents.Len(); i++ {
			pdf.Interpret(contents.Index(i), do)
		}
	} else if contents.Kind() == pdf.Stream {
		pdf.Interpret(contents, do)
	}
	return scan
}

func coverage(area, pageArea float64) float64 {
	if pageArea <= 0 {
		return 0
	}
	c := area / pageArea
	if c > 1 {
		c = 1
	}
	return c
}

func (s *pageScan) text(mcids []int64) string {
	var parts []string
	for _, id := range mcids {
		if b, ok := s.mcidText[id]; ok {
			if t := strings.TrimSpace(b.String()); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// maxCoverage is the largest image coverage painted inside any of mcids.
func (s *pageScan) maxCoverage(mcids []int64) float64 {
	in := make(map[int64]bool, len(mcids))
	for _, id := range mcids {
		in[id] = true
	}
	best := 0.0
	for _, p := range s.placements {
		if p.mcid >= 0 && in[p.mcid] && p.coverage > best {
			best = p.coverage
		}
	}
	return best
}

// untaggedImages lists each painted image once, with its largest placement.
func (s *pageScan) untaggedImages() []Image {
	idx := make(map[string]int)
	var out []Image
	for _, p := range s.placements {
		if i, ok := idx[p.name]; ok {
			if p.coverage > out[i].Coverage {
				out[i].Coverage = p.coverage
			}
			continue
		}
		idx[p.name] = len(out)
		out = append(out, Image{Coverage: p.coverage})
	}
	return out
}
