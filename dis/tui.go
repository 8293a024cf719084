package dis

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Listing renders a whole image as "addr: bytes  text" lines
func Listing(image []byte, base uint32, thumb bool) []string {
	var out []string
	off := 0
	for off < len(image) {
		addr := base + uint32(off)
		if thumb {
			if off+2 > len(image) {
				out = append(out, fmt.Sprintf("%08X: %02X        .i8 0x%02X", addr, image[off], image[off]))
				break
			}
			half := uint16(image[off]) | uint16(image[off+1])<<8
			var next uint16
			if off+4 <= len(image) {
				next = uint16(image[off+2]) | uint16(image[off+3])<<8
			}
			text, size := Thumb(half, next, addr)
			raw := fmt.Sprintf("%02X %02X", image[off], image[off+1])
			if size == 4 {
				raw = fmt.Sprintf("%02X %02X %02X %02X", image[off], image[off+1], image[off+2], image[off+3])
			}
			out = append(out, fmt.Sprintf("%08X: %-11s %s", addr, raw, text))
			off += size
			continue
		}
		if off+4 > len(image) {
			for ; off < len(image); off++ {
				out = append(out, fmt.Sprintf("%08X: %02X        .i8 0x%02X", base+uint32(off), image[off], image[off]))
			}
			break
		}
		word := uint32(image[off]) | uint32(image[off+1])<<8 | uint32(image[off+2])<<16 | uint32(image[off+3])<<24
		out = append(out, fmt.Sprintf("%08X: %02X %02X %02X %02X %s",
			addr, image[off], image[off+1], image[off+2], image[off+3], ARM(word, addr)))
		off += 4
	}
	return out
}

// HexDump renders the image as a classic 16-byte-per-line hex dump
func HexDump(image []byte, base uint32) []string {
	var out []string
	for off := 0; off < len(image); off += 16 {
		end := off + 16
		if end > len(image) {
			end = len(image)
		}
		var hexs, chars strings.Builder
		for i := off; i < end; i++ {
			fmt.Fprintf(&hexs, "%02X ", image[i])
			if image[i] >= 0x20 && image[i] < 0x7F {
				chars.WriteByte(image[i])
			} else {
				chars.WriteByte('.')
			}
		}
		out = append(out, fmt.Sprintf("%08X: %-48s %s", base+uint32(off), hexs.String(), chars.String()))
	}
	return out
}

// Viewer is the interactive ROM viewer: a disassembly panel and a hex panel
type Viewer struct {
	App      *tview.Application
	Layout   *tview.Flex
	DisView  *tview.TextView
	HexView  *tview.TextView
	StatView *tview.TextView

	image []byte
	base  uint32
	thumb bool
}

// NewViewer builds the TUI over an assembled or loaded image
func NewViewer(image []byte, base uint32, thumb bool) *Viewer {
	v := &Viewer{
		App:   tview.NewApplication(),
		image: image,
		base:  base,
		thumb: thumb,
	}

	v.DisView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	v.DisView.SetBorder(true).SetTitle(" Disassembly ")

	v.HexView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	v.HexView.SetBorder(true).SetTitle(" Hex ")

	v.StatView = tview.NewTextView()
	v.StatView.SetText(fmt.Sprintf(" %d bytes at 0x%08X  (tab: switch panel, m: mode, q: quit)", len(image), base))

	v.Layout = tview.NewFlex().
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(v.DisView, 0, 1, true).
			AddItem(v.StatView, 1, 0, false), 0, 2, true).
		AddItem(v.HexView, 0, 1, false)

	v.refresh()
	v.setupKeys()
	return v
}

func (v *Viewer) refresh() {
	v.DisView.SetText(strings.Join(Listing(v.image, v.base, v.thumb), "\n"))
	v.HexView.SetText(strings.Join(HexDump(v.image, v.base), "\n"))
}

func (v *Viewer) setupKeys() {
	v.App.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Rune() {
		case 'q':
			v.App.Stop()
			return nil
		case 'm':
			v.thumb = !v.thumb
			v.refresh()
			return nil
		}
		if event.Key() == tcell.KeyTab {
			if v.App.GetFocus() == v.DisView {
				v.App.SetFocus(v.HexView)
			} else {
				v.App.SetFocus(v.DisView)
			}
			return nil
		}
		return event
	})
}

// Run starts the viewer event loop
func (v *Viewer) Run() error {
	return v.App.SetRoot(v.Layout, true).Run()
}
