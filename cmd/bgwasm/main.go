//go:build js && wasm

// Command bgwasm runs the animated background in the browser. Build with
// GOOS=js GOARCH=wasm and serve as /static/background.wasm.
package main

import (
	"math"
	"math/rand/v2"
	"syscall/js"
	"time"

	"github.com/Zachkp/stats-consult/internal/background"
)

func main() {
	doc := js.Global().Get("document")
	el := doc.Call("getElementById", "background-canvas")
	if el.IsNull() || el.IsUndefined() {
		return
	}

	host := newDOMHost(el)
	seed := uint64(time.Now().UnixNano())
	anim := background.New(host, rafScheduler{}, rand.New(rand.NewPCG(seed, seed>>1)))
	anim.Mount()

	// The page toggles themes by setting data-theme on <html>.
	observer := js.Global().Get("MutationObserver").New(js.FuncOf(func(this js.Value, args []js.Value) any {
		anim.SetTheme(host.Theme())
		return nil
	}))
	observer.Call("observe", doc.Get("documentElement"), map[string]any{
		"attributes":      true,
		"attributeFilter": []any{"data-theme"},
	})

	js.Global().Set("unmountBackground", js.FuncOf(func(this js.Value, args []js.Value) any {
		observer.Call("disconnect")
		anim.Unmount()
		return nil
	}))

	select {}
}

type domHost struct {
	el     js.Value
	parent js.Value
	ctx    js.Value
}

func newDOMHost(el js.Value) *domHost {
	return &domHost{el: el, parent: el.Get("parentElement")}
}

func (h *domHost) Canvas() (background.Canvas, bool) {
	if h.ctx.IsUndefined() || h.ctx.IsNull() {
		h.ctx = h.el.Call("getContext", "2d")
	}
	if h.ctx.IsNull() || h.ctx.IsUndefined() {
		return nil, false
	}
	return canvas2D{ctx: h.ctx}, true
}

// Size also syncs the canvas bitmap to its container.
func (h *domHost) Size() (float64, float64) {
	var w, ht float64
	if !h.parent.IsNull() && !h.parent.IsUndefined() {
		w, ht = h.parent.Get("clientWidth").Float(), h.parent.Get("clientHeight").Float()
	} else {
		w, ht = js.Global().Get("innerWidth").Float(), js.Global().Get("innerHeight").Float()
	}
	h.el.Set("width", w)
	h.el.Set("height", ht)
	return w, ht
}

func (h *domHost) Theme() background.Theme {
	return background.ParseTheme(js.Global().Get("document").Get("documentElement").Call("getAttribute", "data-theme").String())
}

func (h *domHost) SystemDark() bool {
	return js.Global().Call("matchMedia", "(prefers-color-scheme: dark)").Get("matches").Bool()
}

func (h *domHost) Subscribe(l background.Listener) func() {
	win := js.Global()
	target := h.parent
	if target.IsNull() || target.IsUndefined() {
		target = win
	}

	resize := js.FuncOf(func(this js.Value, args []js.Value) any {
		l.Resize()
		return nil
	})
	move := js.FuncOf(func(this js.Value, args []js.Value) any {
		rect := h.el.Call("getBoundingClientRect")
		e := args[0]
		l.PointerMove(e.Get("clientX").Float()-rect.Get("left").Float(), e.Get("clientY").Float()-rect.Get("top").Float())
		return nil
	})
	leave := js.FuncOf(func(this js.Value, args []js.Value) any {
		l.PointerLeave()
		return nil
	})

	win.Call("addEventListener", "resize", resize)
	target.Call("addEventListener", "mousemove", move)
	target.Call("addEventListener", "mouseleave", leave)

	return func() {
		win.Call("removeEventListener", "resize", resize)
		target.Call("removeEventListener", "mousemove", move)
		target.Call("removeEventListener", "mouseleave", leave)
		resize.Release()
		move.Release()
		leave.Release()
	}
}

type canvas2D struct {
	ctx js.Value
}

func (c canvas2D) Clear(w, h float64) {
	c.ctx.Call("clearRect", 0, 0, w, h)
}

func (c canvas2D) FillGradient(w, h float64, top, bottom background.Paint) {
	g := c.ctx.Call("createLinearGradient", 0, 0, 0, h)
	g.Call("addColorStop", 0, top.CSS())
	g.Call("addColorStop", 1, bottom.CSS())
	c.ctx.Set("fillStyle", g)
	c.ctx.Call("fillRect", 0, 0, w, h)
}

func (c canvas2D) FillCircle(x, y, r float64, fill background.Paint, glow background.Glow) {
	c.ctx.Call("save")
	if glow.Blur > 0 {
		c.ctx.Set("shadowBlur", glow.Blur)
		c.ctx.Set("shadowColor", glow.Color.CSS())
	}
	c.ctx.Call("beginPath")
	c.ctx.Call("arc", x, y, r, 0, 2*math.Pi)
	c.ctx.Set("fillStyle", fill.CSS())
	c.ctx.Call("fill")
	c.ctx.Call("restore")
}

func (c canvas2D) StrokeLine(x1, y1, x2, y2, width float64, stroke background.Paint) {
	c.ctx.Call("beginPath")
	c.ctx.Set("strokeStyle", stroke.CSS())
	c.ctx.Set("lineWidth", width)
	c.ctx.Call("moveTo", x1, y1)
	c.ctx.Call("lineTo", x2, y2)
	c.ctx.Call("stroke")
}

// rafScheduler re-arms requestAnimationFrame after every frame.
type rafScheduler struct{}

func (rafScheduler) Start(frame func()) background.Handle {
	h := &rafHandle{}
	h.cb = js.FuncOf(func(this js.Value, args []js.Value) any {
		if h.cancelled {
			return nil
		}
		frame()
		h.id = js.Global().Call("requestAnimationFrame", h.cb)
		return nil
	})
	h.id = js.Global().Call("requestAnimationFrame", h.cb)
	return h
}

type rafHandle struct {
	cb        js.Func
	id        js.Value
	cancelled bool
}

func (h *rafHandle) Cancel() {
	if h.cancelled {
		return
	}
	h.cancelled = true
	js.Global().Call("cancelAnimationFrame", h.id)
	h.cb.Release()
}
