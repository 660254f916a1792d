// Command ouros is the driver entry point for the Python-subset runtime:
// it compiles and runs a script, disassembles a chunk, or starts an
// interactive REPL and/or the HTTP session-manager server, grounded on
// chazu-maggie's cmd/mag entry point (flag-driven mode selection over a
// single VM/manager instance) but simplified to the operations this
// runtime actually exposes.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/ouros-lang/ouros/bytecode"
	"github.com/ouros-lang/ouros/compiler"
	"github.com/ouros-lang/ouros/server"
	"github.com/ouros-lang/ouros/session"
	"github.com/ouros-lang/ouros/vm"
)

func main() {
	interactive := flag.Bool("i", false, "Start an interactive REPL")
	disasm := flag.Bool("disasm", false, "Print disassembly of the compiled script instead of running it")
	serveMode := flag.Bool("serve", false, "Start the HTTP session-manager server")
	servePort := flag.Int("port", 4567, "Server port (used with --serve)")
	configPath := flag.String("config", "", "Path to a TOML session-manager config (see session.Config)")
	restoreAll := flag.Bool("restore", false, "On startup, reload every previously saved session")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ouros [options] [script.py]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  ouros script.py           # Compile and run a script\n")
		fmt.Fprintf(os.Stderr, "  ouros --disasm script.py  # Print bytecode instead of running it\n")
		fmt.Fprintf(os.Stderr, "  ouros -i                  # Start the REPL\n")
		fmt.Fprintf(os.Stderr, "  ouros --serve --port 8080 # Start the HTTP session-manager server\n")
	}
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	paths := flag.Args()

	if *serveMode {
		runServer(cfg, *servePort, *restoreAll)
		return
	}

	if len(paths) > 0 {
		for _, path := range paths {
			if err := runScript(path, *disasm); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}
		return
	}

	if *interactive || len(paths) == 0 {
		runREPL()
	}
}

func loadConfig(path string) (session.Config, error) {
	if path == "" {
		return session.DefaultConfig(), nil
	}
	var cfg session.Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return session.Config{}, err
	}
	return cfg, nil
}

func runServer(cfg session.Config, port int, restoreAll bool) {
	mgr := session.NewManager(cfg)
	if restoreAll {
		if err := mgr.RestoreAll(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: error restoring sessions: %v\n", err)
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	api := server.New(mgr, logger)

	addr := fmt.Sprintf(":%d", port)
	fmt.Printf("ouros session server listening on %s\n", addr)
	if err := http.ListenAndServe(addr, api); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func runScript(path string, disasm bool) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	chunk, err := compiler.Compile(string(src), compiler.CompileOptions{ScriptName: path})
	if err != nil {
		return fmt.Errorf("compile error: %w", err)
	}

	if disasm {
		fmt.Print(bytecode.Disassemble(chunk))
		return nil
	}

	machine := vm.New(vm.DefaultLimits())
	_, perr := machine.Run(chunk, nil, nil)
	if perr != nil {
		return fmt.Errorf("runtime error: %v", perr)
	}
	return nil
}

// runREPL starts an interactive read-eval-print loop against one
// persistent VM: each line is compiled and executed, its result (if
// any) printed via repr, and any bound globals persist to the next line.
func runREPL() {
	fmt.Println("ouros REPL (type 'exit' to quit)")
	machine := vm.New(vm.DefaultLimits())

	scanner := bufio.NewScanner(os.Stdin)
	lineBuffer := strings.Builder{}

	for {
		if lineBuffer.Len() == 0 {
			fmt.Print(">>> ")
		} else {
			fmt.Print("... ")
		}

		if !scanner.Scan() {
			break
		}
		line := scanner.Text()

		if lineBuffer.Len() == 0 && (line == "exit" || line == "quit") {
			break
		}
		if lineBuffer.Len() == 0 && line == "" {
			continue
		}

		lineBuffer.WriteString(line)
		lineBuffer.WriteByte('\n')

		// A line opening a block (ends in ':') or an indented line always
		// waits for more input; the block ends on a blank line, same as
		// CPython's own REPL.
		if line != "" && (strings.HasSuffix(strings.TrimRight(line, " \t"), ":") || strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) {
			continue
		}

		source := lineBuffer.String()
		lineBuffer.Reset()

		chunk, err := compiler.Compile(source, compiler.CompileOptions{ScriptName: "<repl>"})
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			continue
		}

		result, perr := machine.Run(chunk, nil, nil)
		if perr != nil {
			fmt.Fprintf(os.Stderr, "%v\n", perr)
			continue
		}
		if result.IsNone() {
			continue
		}
		repr, perr := machine.Repr(result)
		if perr != nil {
			fmt.Fprintf(os.Stderr, "%v\n", perr)
			continue
		}
		fmt.Println(repr)
	}
}
