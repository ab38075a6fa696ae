package command

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

type Options struct {
	// BaseDir anchors relative paths in spoken file commands.
	BaseDir string
	// OutputDir receives screenshots and recordings.
	OutputDir string

	PowerDelay        time.Duration
	RecordDuration    time.Duration
	MaxRecordDuration time.Duration
	VolumeStep        int

	HomePage  string
	SearchURL string
	// Bookmarks maps a spoken site name to its URL ("open youtube").
	Bookmarks map[string]string
	// TypingTargets maps a spoken app name to the application focused
	// before typing ("type hello on notepad").
	TypingTargets map[string]string

	Now  func() time.Time
	Pick func(n int) int
}

func DefaultOptions() Options {
	home, _ := os.UserHomeDir()
	return Options{
		BaseDir:           home,
		OutputDir:         filepath.Join(home, "Videos", "jarvis"),
		PowerDelay:        time.Minute,
		RecordDuration:    10 * time.Second,
		MaxRecordDuration: 10 * time.Minute,
		VolumeStep:        10,
		HomePage:          "https://www.google.com",
		SearchURL:         "https://www.google.com/search?q=",
		Bookmarks: map[string]string{
			"chat":      "https://chatgpt.com/",
			"chatgpt":   "https://chatgpt.com/",
			"google":    "https://google.com/",
			"insta":     "https://instagram.com/",
			"instagram": "https://instagram.com/",
			"linkedin":  "https://linkedin.com/",
			"youtube":   "https://youtube.com/",
			"github":    "https://github.com/",
		},
		TypingTargets: map[string]string{
			"browser":  "firefox",
			"notepad":  "gedit",
			"editor":   "gedit",
			"word":     "libreoffice",
			"code":     "code",
			"terminal": "gnome-terminal",
		},
		Now:  time.Now,
		Pick: rand.IntN,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.BaseDir == "" {
		o.BaseDir = def.BaseDir
	}
	if o.OutputDir == "" {
		o.OutputDir = def.OutputDir
	}
	if o.PowerDelay < 0 {
		o.PowerDelay = 0
	}
	if o.RecordDuration <= 0 {
		o.RecordDuration = def.RecordDuration
	}
	if o.MaxRecordDuration <= 0 {
		o.MaxRecordDuration = def.MaxRecordDuration
	}
	if o.VolumeStep <= 0 {
		o.VolumeStep = def.VolumeStep
	}
	if o.HomePage == "" {
		o.HomePage = def.HomePage
	}
	if o.SearchURL == "" {
		o.SearchURL = def.SearchURL
	}
	if o.Bookmarks == nil {
		o.Bookmarks = def.Bookmarks
	}
	if o.TypingTargets == nil {
		o.TypingTargets = def.TypingTargets
	}
	if o.Now == nil {
		o.Now = def.Now
	}
	if o.Pick == nil {
		o.Pick = def.Pick
	}
	return o
}

var (
	greetings = []string{"Hello there!", "Hi!", "Hey!"}
	howAreYou = []string{
		"I'm doing great, thanks! How can I assist you?",
		"All systems go! What can I do for you?",
	}
	jokes = []string{
		"Why do programmers prefer dark mode? Because light attracts bugs!",
		"Why did the computer show up late to work? It had a hard drive.",
	}
)

type handlers struct {
	fx  Effects
	opt Options
}

// DefaultRules returns the built-in rule list in evaluation order.
func DefaultRules(fx Effects, opt Options) []Rule {
	h := &handlers{fx: fx, opt: opt.withDefaults()}

	return []Rule{
		// small talk
		{"greeting", SmallTalk, Full, `(?:hi|hello|hey|good (?:morning|afternoon|evening))(?: there)?(?:,? jarvis)?`, h.say(greetings)},
		{"how-are-you", SmallTalk, Full, `how are you(?: doing)?(?: today)?(?:,? jarvis)?|how's it going|how is it going`, h.say(howAreYou)},
		{"joke", SmallTalk, Full, `(?:tell me )?(?:a )?jokes?|tell me a joke|(?:tell|say) (?:me )?something funny`, h.say(jokes)},

		// typing, app-scoped first
		{"type-on-app", Typing, Full, `type (.+) on (` + alternation(h.opt.TypingTargets) + `)`, h.typeOnApp},
		{"type", Typing, Full, `type (.+)`, h.typeText},

		// apps and windows
		{"open-app", Apps, Full, `(?:open|launch|start) (?:the )?app(?:lication)? (.+)`, h.openApp},
		{"close-app", Apps, Full, `(?:close|kill) (?:the )?app(?:lication)? (.+)`, h.closeApp},
		{"window", Apps, Full, `(minimize|maximize) (?:the )?(?:window|app (.+))`, h.window},

		// browser and sites
		{"browser", Web, Prefix, `open (?:the |my )?(?:web )?browser`, h.openBrowser},
		{"search", Web, Full, `(?:search|look up) (?:the )?(?:web|internet|google) for (.+)|google (.+)`, h.search},
		{"trash", Web, Full, `open (?:the )?(?:recycle bin|trash(?: can| bin)?)`, h.openTrash},
		{"home", Web, Full, `open (?:my |the )?(?:computer|home folder)`, h.openHome},
		{"bookmark", Web, Prefix, `open (` + alternation(h.opt.Bookmarks) + `)`, h.bookmark},

		// filesystem
		{"create-folder", Files, Full, `(?:create|make) (?:a )?(?:new )?(?:folder|directory) (?:called |named )?(.+)`, h.createFolder},
		{"delete-folder", Files, Full, `(?:delete|remove) (?:the )?(?:folder|directory) (.+)`, h.deleteFolder},
		{"delete-file", Files, Full, `(?:delete|remove) (?:the )?file (.+)`, h.deleteFile},
		{"open-file", Files, Full, `open (?:the )?file (.+)`, h.openFile},
		{"find-file", Files, Full, `find (?:the )?files? (.+?) in (.+)`, h.findFile},

		// media
		{"play-folder", Media, Full, `play (?:music|songs|mp3s?) from (.+)`, h.playFolder},
		{"next-track", Media, Contains, `next (?:track|song)|skip (?:this |the )?(?:track|song)`, h.mediaKey("XF86AudioNext", "Next track")},
		{"previous-track", Media, Contains, `previous (?:track|song)|last (?:track|song)`, h.mediaKey("XF86AudioPrev", "Previous track")},
		{"play-pause", Media, Contains, `play|pause|resume`, h.mediaKey("XF86AudioPlay", "Toggled play/pause")},

		// volume
		{"set-volume", Volume, Full, `set (?:the )?volume (?:to )?(minus |-)?(\d+)(?: ?%| percent)?`, h.setVolume},
		{"unmute", Volume, Contains, `unmute`, h.mute(false)},
		{"mute", Volume, Contains, `mute`, h.mute(true)},
		{"volume-up", Volume, Contains, `volume up|turn (?:it|the volume) up|louder`, h.stepVolume(1)},
		{"volume-down", Volume, Contains, `volume down|turn (?:it|the volume) down|quieter`, h.stepVolume(-1)},

		// screen
		{"screenshot", Screen, Contains, `screenshot|screen shot|capture (?:the )?screen`, h.screenshot},
		{"record-screen", Screen, Contains, `record (?:the |my )?screen(?: for (\d+) (seconds?|minutes?))?`, h.recordScreen},

		// system info
		{"time", System, Contains, `what time|the time|time is it`, h.tellTime},
		{"date", System, Contains, `what(?:'s| is)? (?:the |today's )?date|what day|today's date`, h.tellDate},
		{"battery", System, Contains, `battery`, h.battery},
		{"cpu", System, Contains, `cpu(?: usage| load)?|processor usage`, h.cpu},
		{"memory", System, Contains, `memory(?: usage)?|ram(?: usage)?`, h.memory},
		{"ip", System, Contains, `ip address|my ip`, h.ipAddress},
		{"os", System, Contains, `system info(?:rmation)?|operating system|what os`, h.osInfo},

		// power, cancel first
		{"cancel-shutdown", Power, Contains, `(?:cancel|abort) (?:the )?(?:shutdown|shut down|restart|reboot)`, h.cancelPower},
		{"shutdown", Power, Contains, `shut ?down|power off|turn off the computer`, h.shutdown},
		{"restart", Power, Contains, `restart|reboot`, h.restart},
		{"lock", Power, Contains, `lock (?:the )?(?:workstation|screen|computer)`, h.lock},
	}
}

// alternation builds a regexp alternation of the map keys, longest first.
func alternation[V any](m map[string]V) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, regexp.QuoteMeta(strings.ToLower(k)))
	}
	slices.SortFunc(keys, func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(a, b)
	})
	if len(keys) == 0 {
		return `$^`
	}
	return strings.Join(keys, "|")
}

func (h *handlers) say(lines []string) Handler {
	return func(context.Context, []string) (string, error) {
		return lines[h.opt.Pick(len(lines))], nil
	}
}

func (h *handlers) typeOnApp(ctx context.Context, args []string) (string, error) {
	text, target := args[0], args[1]
	if err := h.fx.Apps.Focus(ctx, h.opt.TypingTargets[target]); err != nil {
		return fmt.Sprintf("I couldn't switch to %s.", target), err
	}
	if err := h.fx.Keyboard.Type(ctx, text); err != nil {
		return "", err
	}
	return fmt.Sprintf("Typed '%s' in %s", text, target), nil
}

func (h *handlers) typeText(ctx context.Context, args []string) (string, error) {
	if err := h.fx.Keyboard.Type(ctx, args[0]); err != nil {
		return "", err
	}
	return fmt.Sprintf("Typed '%s'", args[0]), nil
}

func (h *handlers) openApp(ctx context.Context, args []string) (string, error) {
	if err := h.fx.Apps.Open(ctx, args[0]); err != nil {
		return fmt.Sprintf("I couldn't open %s.", args[0]), err
	}
	return "Opening " + args[0], nil
}

func (h *handlers) closeApp(ctx context.Context, args []string) (string, error) {
	if err := h.fx.Apps.Close(ctx, args[0]); err != nil {
		return fmt.Sprintf("I couldn't close %s.", args[0]), err
	}
	return "Closing " + args[0], nil
}

func (h *handlers) window(ctx context.Context, args []string) (string, error) {
	action, name := args[0], args[1]
	var err error
	if action == "minimize" {
		err = h.fx.Apps.Minimize(ctx, name)
	} else {
		err = h.fx.Apps.Maximize(ctx, name)
	}
	if err != nil {
		return "", err
	}
	return "Window " + action + "d", nil
}

func (h *handlers) openBrowser(ctx context.Context, _ []string) (string, error) {
	if err := h.fx.Opener.OpenURL(ctx, h.opt.HomePage); err != nil {
		return "", err
	}
	return "Opening default browser.", nil
}

func (h *handlers) search(ctx context.Context, args []string) (string, error) {
	q := firstNonEmpty(args...)
	if err := h.fx.Opener.OpenURL(ctx, h.opt.SearchURL+url.QueryEscape(q)); err != nil {
		return "", err
	}
	return "Searching the web for " + q, nil
}

func (h *handlers) openTrash(ctx context.Context, _ []string) (string, error) {
	if err := h.fx.Opener.OpenPath(ctx, "trash:///"); err != nil {
		return "", err
	}
	return "Opening trash.", nil
}

func (h *handlers) openHome(ctx context.Context, _ []string) (string, error) {
	if err := h.fx.Opener.OpenPath(ctx, h.opt.BaseDir); err != nil {
		return "", err
	}
	return "Opening home folder.", nil
}

func (h *handlers) bookmark(ctx context.Context, args []string) (string, error) {
	site := args[0]
	if err := h.fx.Opener.OpenURL(ctx, h.opt.Bookmarks[site]); err != nil {
		return "", err
	}
	return "Opening " + site + ".", nil
}

func (h *handlers) mediaKey(key, reply string) Handler {
	return func(ctx context.Context, _ []string) (string, error) {
		if err := h.fx.Keyboard.Press(ctx, key); err != nil {
			return "", err
		}
		return reply, nil
	}
}

func (h *handlers) setVolume(ctx context.Context, args []string) (string, error) {
	v, err := strconv.Atoi(args[1])
	if err != nil {
		// overflow
		v = 100
	}
	if args[0] != "" {
		v = -v
	}
	v = min(max(v, 0), 100)

	if err := h.fx.Mixer.SetVolume(ctx, v); err != nil {
		return "", err
	}
	return fmt.Sprintf("Volume set to %d%%", v), nil
}

func (h *handlers) mute(on bool) Handler {
	return func(ctx context.Context, _ []string) (string, error) {
		if err := h.fx.Mixer.Mute(ctx, on); err != nil {
			return "", err
		}
		if on {
			return "Muted", nil
		}
		return "Unmuted", nil
	}
}

func (h *handlers) stepVolume(sign int) Handler {
	return func(ctx context.Context, _ []string) (string, error) {
		if err := h.fx.Mixer.StepVolume(ctx, sign*h.opt.VolumeStep); err != nil {
			return "", err
		}
		if sign > 0 {
			return "Volume up", nil
		}
		return "Volume down", nil
	}
}

func (h *handlers) screenshot(ctx context.Context, _ []string) (string, error) {
	name := "screenshot_" + h.stamp() + ".png"
	path, err := h.output(name)
	if err != nil {
		return "", err
	}
	if err := h.fx.Screen.Screenshot(ctx, path); err != nil {
		return "", err
	}
	return "Saved screenshot as " + name, nil
}

func (h *handlers) recordScreen(_ context.Context, args []string) (string, error) {
	d := h.opt.RecordDuration
	if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
		d = time.Duration(n) * time.Second
		if strings.HasPrefix(args[1], "minute") {
			d = time.Duration(n) * time.Minute
		}
	}
	d = min(d, h.opt.MaxRecordDuration)

	path, err := h.output("recording_" + h.stamp() + ".mp4")
	if err != nil {
		return "", err
	}

	screen := h.fx.Screen
	h.fx.Jobs.Spawn(recordJob(path, d, screen))
	return fmt.Sprintf("Recording %s of screen.", spokenDuration(d)), nil
}

func (h *handlers) tellTime(context.Context, []string) (string, error) {
	return "The time is " + h.opt.Now().Format("3:04 PM"), nil
}

func (h *handlers) tellDate(context.Context, []string) (string, error) {
	return "Today is " + h.opt.Now().Format("Monday, January 2, 2006"), nil
}

func (h *handlers) battery(ctx context.Context, _ []string) (string, error) {
	b, err := h.fx.System.Battery(ctx)
	if err != nil {
		return "Battery info unavailable.", nil
	}
	if b.Charging {
		return fmt.Sprintf("Battery at %.0f%% and charging", b.Percent), nil
	}
	return fmt.Sprintf("Battery at %.0f%%", b.Percent), nil
}

func (h *handlers) cpu(ctx context.Context, _ []string) (string, error) {
	p, err := h.fx.System.CPUPercent(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CPU at %.0f%%", p), nil
}

func (h *handlers) memory(ctx context.Context, _ []string) (string, error) {
	m, err := h.fx.System.Memory(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("RAM at %.0f%% of %s", m.Percent, humanize.Bytes(m.Total)), nil
}

func (h *handlers) ipAddress(ctx context.Context, _ []string) (string, error) {
	ip, err := h.fx.System.IPAddress(ctx)
	if err != nil {
		return "I couldn't find your IP address.", err
	}
	return "Your IP address is " + ip, nil
}

func (h *handlers) osInfo(ctx context.Context, _ []string) (string, error) {
	return h.fx.System.OS(ctx)
}

func (h *handlers) cancelPower(ctx context.Context, _ []string) (string, error) {
	if err := h.fx.Power.Cancel(ctx); err != nil {
		return "There is nothing to cancel.", err
	}
	return "Cancelled the pending shutdown.", nil
}

func (h *handlers) shutdown(ctx context.Context, _ []string) (string, error) {
	if err := h.fx.Power.Shutdown(ctx, h.opt.PowerDelay); err != nil {
		return "", err
	}
	return "Shutting down " + h.when(h.opt.PowerDelay) + ". Say 'cancel shutdown' to abort.", nil
}

func (h *handlers) restart(ctx context.Context, _ []string) (string, error) {
	if err := h.fx.Power.Restart(ctx, h.opt.PowerDelay); err != nil {
		return "", err
	}
	return "Restarting " + h.when(h.opt.PowerDelay) + ". Say 'cancel restart' to abort.", nil
}

func (h *handlers) lock(ctx context.Context, _ []string) (string, error) {
	if err := h.fx.Power.Lock(ctx); err != nil {
		return "", err
	}
	return "Locking workstation.", nil
}

func (h *handlers) when(d time.Duration) string {
	if d <= 0 {
		return "now"
	}
	now := h.opt.Now()
	return humanize.RelTime(now.Add(d), now, "ago", "from now")
}

func (h *handlers) stamp() string {
	return h.opt.Now().Format("20060102_150405.000")
}

func (h *handlers) output(name string) (string, error) {
	if err := os.MkdirAll(h.opt.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	return filepath.Join(h.opt.OutputDir, name), nil
}

func spokenDuration(d time.Duration) string {
	if d%time.Minute == 0 {
		return plural(int(d/time.Minute), "minute")
	}
	return plural(int(d.Round(time.Second)/time.Second), "second")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}
