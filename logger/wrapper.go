package logger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/rs/zerolog"
	"io"
	"os"
	"os/exec"
	"runtime/debug"
	"strings"
)

// WrapProcess runs the service as a child process, passes its JSON log lines
// through to stdout and turns a panic dump on its stderr into one fatal entry.
// It exits with the child's exit code.
func WrapProcess(executable string, arg ...string) {
	wrapperLogger := NewLogger("Logs wrapper")
	defer handlePanic(wrapperLogger)

	r, w, err := os.Pipe()
	if err != nil {
		wrapperLogger.Fatal().Err(err).Msg("Could not create pipe for logs")
		os.Exit(1)
	}

	cmd := exec.Command(executable, arg...)
	cmd.Stderr = w
	if err = cmd.Start(); err != nil {
		wrapperLogger.Fatal().Err(err).Msg("Could not launch main process")
		os.Exit(1)
	}

	exitCodeCh := make(chan int, 1)
	go func() {
		defer handlePanic(wrapperLogger)
		exitCodeCh <- exitCode(cmd.Wait())
		_ = w.Close()
	}()

	filter := newLineFilter(os.Stdout, wrapperLogger)
	if err = filter.consume(r); err != nil {
		wrapperLogger.Error().Err(err).Msg("Error scanning piped main process's Stderr")
	}
	code := <-exitCodeCh
	if code == 0 {
		wrapperLogger.Info().Msg("Exited with code 0")
		os.Exit(0)
	}
	wrapperLogger.Error().
		Err(errors.New(filter.panicLogs())).
		Msgf("Panicked and exited with code: %d", code)
	os.Exit(code)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

type lineFilter struct {
	out        io.Writer
	log        zerolog.Logger
	foundPanic bool
	panicBuf   strings.Builder
}

func newLineFilter(out io.Writer, log zerolog.Logger) *lineFilter {
	return &lineFilter{out: out, log: log}
}

func (f *lineFilter) consume(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		f.handleLine(scanner.Bytes())
	}
	return scanner.Err()
}

// handleLine forwards JSON lines, collects everything after a panic header
// and reports other stray output as an error entry.
func (f *lineFilter) handleLine(line []byte) {
	text := string(line)
	if !f.foundPanic && strings.HasPrefix(text, "panic") {
		f.foundPanic = true
	}
	switch {
	case len(line) == 0:
	case f.foundPanic:
		f.panicBuf.WriteString(text)
		f.panicBuf.WriteByte('\n')
	case isJSON(line):
		_, _ = fmt.Fprintln(f.out, text)
	default:
		f.log.Error().Msgf("Got log line that is not JSON formatted: '%s'", text)
	}
}

func (f *lineFilter) panicLogs() string {
	return f.panicBuf.String()
}

func handlePanic(log zerolog.Logger) {
	r := recover()
	if r == nil {
		return
	}
	log.Fatal().
		Caller().
		Str("error", fmt.Sprint(r)).
		Str("stack_trace", string(debug.Stack())).
		Msg("Program panicked and exited")
}

func isJSON(b []byte) bool {
	var js json.RawMessage
	err := json.Unmarshal(b, &js)
	return err == nil && js != nil
}
