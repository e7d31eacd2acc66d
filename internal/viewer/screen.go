package viewer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/talgya/infall/internal/engine"
)

// hudWidth is the number of columns reserved for the status panel.
const hudWidth = 44

// levelStyles colours glyphs from deep red (faint) to white (bright).
var levelStyles = [4]tcell.Style{
	tcell.StyleDefault.Foreground(tcell.ColorDarkRed),
	tcell.StyleDefault.Foreground(tcell.ColorOrangeRed),
	tcell.StyleDefault.Foreground(tcell.ColorGold),
	tcell.StyleDefault.Foreground(tcell.ColorWhite),
}

// App is the interactive terminal viewer.
type App struct {
	Client  *Client
	Chirper *Chirper // Optional
	Poll    time.Duration

	screen     tcell.Screen
	frame      *engine.Frame
	prev       *engine.Frame
	trail      *Trail
	objectView bool
	message    string
}

// NewApp creates a viewer polling client every poll interval.
func NewApp(client *Client, chirper *Chirper, poll time.Duration) *App {
	return &App{
		Client:  client,
		Chirper: chirper,
		Poll:    poll,
		trail:   NewTrail(120),
	}
}

// Run takes over the terminal until the user quits or ctx is done.
func (a *App) Run(ctx context.Context) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("create screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}
	defer screen.Fini()
	a.screen = screen

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(a.Poll)
	defer ticker.Stop()
	a.refresh(ctx)

	for {
		select {
		case ev := <-events:
			if !a.handleInput(ctx, ev) {
				return nil
			}
			a.draw()
		case <-ticker.C:
			a.refresh(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

// refresh pulls a frame and redraws.
func (a *App) refresh(ctx context.Context) {
	f, err := a.Client.Frame(ctx)
	if err != nil {
		a.message = "fetch failed: " + err.Error()
		slog.Debug("frame fetch failed", "error", err)
		a.draw()
		return
	}
	a.Observe(f)
	a.draw()
}

// Observe records a new frame, chirping for every body that died since the
// previous one and extending the radius trail.
func (a *App) Observe(f *engine.Frame) []int {
	a.prev, a.frame = a.frame, f

	var died []int
	if a.prev != nil {
		if f.Cycle != a.prev.Cycle {
			a.trail.Reset()
		} else {
			for i := range f.Bodies {
				if i < len(a.prev.Bodies) && a.prev.Bodies[i].Alive && !f.Bodies[i].Alive {
					died = append(died, i)
					if a.Chirper != nil {
						a.Chirper.Play(a.prev.Bodies[i].Opacity)
					}
				}
			}
		}
	}
	if f.Stats.Alive > 0 && (a.prev == nil || f.Tick != a.prev.Tick) {
		a.trail.Add(f.Stats.MinRadiusRs)
	}
	return died
}

func (a *App) handleInput(ctx context.Context, ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
			return false
		}
		if ev.Key() != tcell.KeyRune {
			return true
		}
		switch ev.Rune() {
		case 'q':
			return false
		case 'z':
			a.objectView = !a.objectView
		case 'm':
			if a.Chirper != nil {
				if a.Chirper.ToggleMute() {
					a.message = "muted"
				} else {
					a.message = "sound on"
				}
			}
		case 's':
			a.session(ctx, "start")
		case 'e':
			a.session(ctx, "end")
		}
	case *tcell.EventResize:
		a.screen.Sync()
	}
	return true
}

func (a *App) session(ctx context.Context, action string) {
	if err := a.Client.Session(ctx, action); err != nil {
		a.message = err.Error()
		return
	}
	a.message = "session " + action
}

func (a *App) draw() {
	s := a.screen
	s.Clear()
	w, h := s.Size()

	canvasW := w - hudWidth
	if canvasW < 10 {
		canvasW = w
	}

	if f := a.frame; f != nil {
		vp := HoleView(f, canvasW, h)
		if a.objectView {
			vp = ObjectView(f, canvasW, h)
		}
		for _, c := range Project(f, vp) {
			s.SetContent(c.X, c.Y, c.Glyph, nil, levelStyles[c.Level])
		}
		if canvasW < w {
			a.drawHUD(f, canvasW+1, hudWidth-1, h)
		}
	}

	help := "q quit  s start  e end  z zoom  m mute"
	if a.message != "" {
		help = a.message
	}
	drawText(s, 0, h-1, help, tcell.StyleDefault.Foreground(tcell.ColorGray))
	s.Show()
}

func (a *App) drawHUD(f *engine.Frame, x, width, height int) {
	s := a.screen
	label := tcell.StyleDefault.Foreground(tcell.ColorGray)
	value := tcell.StyleDefault.Foreground(tcell.ColorWhite)

	y := 0
	drawText(s, x, y, "INFALL", tcell.StyleDefault.Foreground(tcell.ColorOrange).Bold(true))
	y += 2
	for _, l := range HUDLines(f) {
		drawText(s, x, y, l[0], label)
		drawText(s, x+10, y, l[1], value)
		y++
	}

	chart := Plot(a.trail.Samples(), width-10, 8, "min r / rs")
	y++
	for _, line := range strings.Split(chart, "\n") {
		if y >= height-1 {
			break
		}
		drawText(s, x, y, line, levelStyles[1])
		y++
	}
}

func drawText(s tcell.Screen, x, y int, text string, style tcell.Style) {
	for _, r := range text {
		s.SetContent(x, y, r, nil, style)
		x++
	}
}
