// Command mwemu is the operator-facing CLI for the x86/x86-64 malware
// triage emulator: it loads a PE/ELF sample, runs (or single-steps) it
// through internal/emu's core, and renders a colorized instruction
// trace or a CSV trace file, matching the teacher's cobra root/subcommand
// shape (cmd/galago/main.go's outputWriter goroutine and formatLine
// texture, retargeted from ARM64 disassembly to x86asm.Inst text).
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/arch/x86/x86asm"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vireolabs/mwemu/cmd/mwemu/tui"
	"github.com/vireolabs/mwemu/internal/config"
	"github.com/vireolabs/mwemu/internal/emu"
	"github.com/vireolabs/mwemu/internal/loader"
	glog "github.com/vireolabs/mwemu/internal/log"
	"github.com/vireolabs/mwemu/internal/rpc"
	"github.com/vireolabs/mwemu/internal/script"
	"github.com/vireolabs/mwemu/internal/stubs"
	_ "github.com/vireolabs/mwemu/internal/stubs/allstubs"
	"github.com/vireolabs/mwemu/internal/trace"
	"github.com/vireolabs/mwemu/internal/ui/colorize"
)

var (
	verbose     bool
	quiet       bool
	maxInsn     int
	is32        bool
	linuxGuest  bool
	traceFile   string
	cfgFile     string
	breakAtRIPs []string
	scriptFile  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mwemu [binary]",
		Short: "x86/x86-64 instruction-level emulator for malware triage",
		Long: `mwemu loads a PE32/PE64/ELF32/ELF64 sample into a simulated flat address
space, decodes and executes it instruction by instruction, and intercepts
calls into Windows/Linux system libraries to dispatch emulated API stubs.

It is built for deterministic, inspectable execution: breakpoints, a
CSV trace, and structured logging are available at every step.

Examples:
  mwemu run sample.exe               # run to completion with a colorized trace
  mwemu run sample.exe -q             # quiet mode: summary only
  mwemu run sample.exe --trace out.csv
  mwemu step sample.exe -n 50         # single-step the first 50 instructions
  mwemu info sample.exe
  mwemu tui sample.exe                # step interactively`,
		Args:                  cobra.MaximumNArgs(1),
		DisableFlagsInUseLine: true,
		RunE:                  runTrace,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose debug output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "quiet mode (summary only)")
	rootCmd.PersistentFlags().IntVarP(&maxInsn, "num", "n", 0, "max instructions to execute (0 = unbounded)")
	rootCmd.PersistentFlags().BoolVar(&is32, "32", false, "treat the image as 32-bit")
	rootCmd.PersistentFlags().BoolVar(&linuxGuest, "linux", false, "treat the image as a Linux/ELF guest (default: Windows/PE)")
	rootCmd.PersistentFlags().StringVar(&traceFile, "trace", "", "write a CSV execution trace to this path")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "load a YAML config file")
	rootCmd.PersistentFlags().StringArrayVar(&breakAtRIPs, "break", nil, "break at this RIP (hex), repeatable")
	rootCmd.PersistentFlags().StringVar(&scriptFile, "on-break", "", "evaluate this JS file's predicate on every breakpoint hit")

	runCmd := &cobra.Command{
		Use:   "run <binary>",
		Short: "run the sample to completion (or until a breakpoint/fault)",
		Args:  cobra.ExactArgs(1),
		RunE:  runTrace,
	}
	rootCmd.AddCommand(runCmd)

	stepCmd := &cobra.Command{
		Use:   "step <binary>",
		Short: "single-step the first N instructions",
		Args:  cobra.ExactArgs(1),
		RunE:  runTrace,
	}
	rootCmd.AddCommand(stepCmd)

	infoCmd := &cobra.Command{
		Use:   "info <binary>",
		Short: "show loaded image information",
		Args:  cobra.ExactArgs(1),
		RunE:  showInfo,
	}
	rootCmd.AddCommand(infoCmd)

	var servePort string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run a headless trace-streaming service over Connect RPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := rpc.NewStepService()
			path, handler := svc.Handler()
			mux := http.NewServeMux()
			mux.Handle(path, handler)
			glog.Init(verbose)
			if glog.L != nil {
				glog.L.Info("rpc: listening", glog.Fn(path))
			}
			return http.ListenAndServe(servePort, mux)
		},
	}
	serveCmd.Flags().StringVar(&servePort, "addr", ":7777", "address to listen on")
	rootCmd.AddCommand(serveCmd)

	tuiCmd := &cobra.Command{
		Use:   "tui <binary>",
		Short: "step through the sample in an interactive console",
		Args:  cobra.ExactArgs(1),
		RunE:  runTUI,
	}
	rootCmd.AddCommand(tuiCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}
	cfg.Debug = verbose
	cfg.Is32Bit = is32
	cfg.Linux = linuxGuest
	if traceFile != "" {
		cfg.TraceFile = traceFile
	}
	return cfg, nil
}

// buildCore loads binary into a fresh Core, installs the stub registry,
// maps an initial stack, and seeds the main thread's RSP/RIP per
// spec.md §6's loader obligations.
func buildCore(binary string, cfg *config.Config) (*emu.Core, *loader.Image, error) {
	core := emu.NewCore(cfg)
	core.Stubs = stubs.DefaultRegistry

	resolve := func(name string) (uint64, bool) {
		addr, err := core.Maps.Lib64Alloc(name, 0x10)
		if cfg.Is32Bit {
			addr, err = core.Maps.Lib32Alloc(name, 0x10)
		}
		if err != nil {
			return 0, false
		}
		return addr, true
	}

	var img *loader.Image
	var err error
	if cfg.Linux {
		img, err = loader.LoadELF(core.Maps, binary, resolve)
	} else {
		img, err = loader.LoadPE(core.Maps, binary, resolve)
	}
	if err != nil {
		return nil, nil, err
	}

	installed := stubs.DefaultRegistry.Install(img.Imports)
	if glog.L != nil {
		glog.L.Debug("stubs installed", glog.Fn(fmt.Sprintf("%d", installed)))
	}

	stackBase := emu.DefaultStackBase64
	if img.Bits == 32 {
		stackBase = emu.DefaultStackBase32
	}
	if _, err := core.Maps.Map("stack", uint64(stackBase), emu.DefaultStackSize, emu.PermRead|emu.PermWrite); err != nil {
		return nil, nil, fmt.Errorf("mapping stack: %w", err)
	}

	t := emu.NewThread(0, img.Bits == 32, cfg.Linux)
	t.Regs.RIP = img.Entry
	t.Regs.Set64(emu.RSP, uint64(stackBase)+emu.DefaultStackSize-0x1000)
	t.Regs.Set64(emu.RBP, t.Regs.Get64(emu.RSP))
	core.Sched.AddThread(t)

	if len(breakAtRIPs) > 0 || scriptFile != "" {
		bp := emu.NewBreakpoints()
		for _, s := range breakAtRIPs {
			var addr uint64
			fmt.Sscanf(strings.TrimPrefix(s, "0x"), "%x", &addr)
			bp.AddRIP(addr)
		}
		core.AttachBreakpoints(bp)
	}

	return core, img, nil
}

func runTrace(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	binary := args[0]

	glog.Init(verbose)
	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	core, img, err := buildCore(binary, cfg)
	if err != nil {
		return err
	}

	colorize.Enable(isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))

	var rec *trace.Recorder
	var traceOut *os.File
	if cfg.TraceFile != "" {
		traceOut, err = os.Create(cfg.TraceFile)
		if err != nil {
			return err
		}
		defer traceOut.Close()
		rec, err = trace.NewRecorder(traceOut)
		if err != nil {
			return err
		}
		rec.AttachMemoryLog(core.Maps)
	}

	var scriptEngine *script.Predicate
	if scriptFile != "" {
		scriptEngine, err = script.Load(scriptFile)
		if err != nil {
			return err
		}
	}

	out := newOutputWriter()
	defer out.Close()

	printHeader(out, binary, img.BaseAddr, img.Entry, len(img.Imports))

	stopCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if core.Breakpoints != nil {
		core.Breakpoints.Hit = func(reason string, addr uint64) {
			current := core.Sched.Current()
			shouldStop := true
			if scriptEngine != nil && current != nil {
				shouldStop = scriptEngine.Eval(current, reason, addr)
			}
			if shouldStop {
				core.Stop()
			}
		}
	}

	count := 0
	limit := maxInsn
	core.OnTrace = func(t *emu.Thread, rip uint64, d *emu.DecodedInsn, preFlags emu.Flags) {
		count++
		dis := disasmText(d, rip)
		insnBytes := readInsnBytes(core, rip, d.Len)

		if rec != nil {
			rec.Record(&t.Regs, &t.Regs, rip, insnBytes, dis, "")
		}
		if !quiet {
			out.Write(formatLine(rip, insnBytes, dis))
		}
	}

	var runErr error
	if limit > 0 {
		for i := 0; i < limit; i++ {
			if err := core.Step(); err != nil {
				runErr = err
				break
			}
		}
	} else {
		runErr = core.Run(stopCtx)
	}

	if rec != nil {
		rec.Flush()
	}

	printStats(count, runErr)
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	binary := args[0]
	glog.Init(verbose)
	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	core, _, err := buildCore(binary, cfg)
	if err != nil {
		return err
	}

	p := tea.NewProgram(tui.New(core))
	_, err = p.Run()
	return err
}

func showInfo(cmd *cobra.Command, args []string) error {
	binary := args[0]
	glog.Init(verbose)
	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	_, img, err := buildCore(binary, cfg)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n", colorize.Header("▶"), filepath.Base(binary))
	fmt.Printf("  %s %d-bit\n", colorize.Detail("Arch:"), img.Bits)
	fmt.Printf("  %s %s\n", colorize.Detail("Base:"), colorize.Address(img.BaseAddr))
	fmt.Printf("  %s %s\n", colorize.Detail("Entry:"), colorize.Address(img.Entry))
	fmt.Printf("  %s %d\n", colorize.Detail("Imports:"), len(img.Imports))
	fmt.Printf("  %s %d\n", colorize.Detail("Known stubs:"), stubs.DefaultRegistry.Count())
	return nil
}

func disasmText(d *emu.DecodedInsn, rip uint64) string {
	if d.Extra != emu.ExtraNone {
		if d.Extra == emu.ExtraADCX {
			return fmt.Sprintf("ADCX %s, %s", d.Dst, d.Src)
		}
		return fmt.Sprintf("ADOX %s, %s", d.Dst, d.Src)
	}
	s := x86asm.IntelSyntax(d.Inst, rip, nil)
	if s == "" {
		return d.Inst.String()
	}
	return s
}

func readInsnBytes(core *emu.Core, addr uint64, n int) []byte {
	if n <= 0 || !core.Maps.IsMapped(addr) {
		return nil
	}
	return core.Maps.Read(addr, uint64(n))
}

// --- output plumbing, adapted from cmd/galago/main.go's outputWriter ---

type outputWriter struct {
	ch     chan string
	done   chan struct{}
	writer *bufio.Writer
}

func newOutputWriter() *outputWriter {
	w := &outputWriter{
		ch:     make(chan string, 2048),
		done:   make(chan struct{}),
		writer: bufio.NewWriterSize(os.Stdout, 64*1024),
	}
	go w.run()
	return w
}

func (w *outputWriter) run() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case line, ok := <-w.ch:
			if !ok {
				w.writer.Flush()
				close(w.done)
				return
			}
			w.writer.WriteString(line)
			w.writer.WriteByte('\n')
		case <-ticker.C:
			w.writer.Flush()
		}
	}
}

func (w *outputWriter) Write(line string) {
	select {
	case w.ch <- line:
	default:
	}
}

func (w *outputWriter) Close() {
	close(w.ch)
	<-w.done
}

func formatLine(addr uint64, code []byte, dis string) string {
	var b strings.Builder
	b.Grow(128)
	b.WriteString(colorize.Address(addr))
	b.WriteString("  ")
	if len(code) > 0 {
		b.WriteString(colorize.HexBytes(fmt.Sprintf("%x", code)))
		b.WriteString("  ")
	}
	b.WriteString(colorize.Instruction(dis))
	return b.String()
}

func printHeader(w *outputWriter, binary string, base, entry uint64, numImports int) {
	w.Write("")
	w.Write(fmt.Sprintf("%s mwemu ─ x86 emulation trace", colorize.Header("▶")))
	w.Write(fmt.Sprintf("  %s %s", colorize.Detail("Loading:"), binary))
	w.Write(fmt.Sprintf("  %s %s  %s %s",
		colorize.Detail("Base:"), colorize.Address(base),
		colorize.Detail("Entry:"), colorize.Address(entry)))
	w.Write(fmt.Sprintf("  %s %d", colorize.Detail("Imports:"), numImports))
	w.Write("")
}

func printStats(count int, err error) {
	fmt.Println()
	fmt.Print(colorize.Border("───── "))
	fmt.Printf("%d insn", count)
	if err != nil {
		fmt.Printf("  %s", colorize.Error(err.Error()))
	}
	fmt.Println()
}
