// dxc - compiles DATEX scripts into DXB blocks
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/datex/compiler"
	"github.com/chazu/datex/manifest"
	"github.com/chazu/datex/server"
	"github.com/chazu/datex/store"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	expr := flag.String("e", "", "Compile the given script instead of a file")
	data := flag.String("data", "", "JSON array of values injected for '?' placeholders")
	bodyOnly := flag.Bool("body", false, "Output the bare body without a block header")
	disasm := flag.Bool("d", false, "Print a disassembly instead of the compiled bytes")
	b64 := flag.Bool("b64", false, "Print every block as base64")
	out := flag.String("o", "", "Write the raw blocks to a file")
	info := flag.Bool("info", false, "Print the header of the block files given as arguments")
	keepOpen := flag.Bool("keep-open", false, "Keep the scope open (no end of scope flag)")
	cachePath := flag.String("cache", "", "Template database (defaults to the manifest store path)")
	serveAddr := flag.String("serve", "", "Start the compile service on the given address (e.g. :4568)")
	lspMode := flag.Bool("lsp", false, "Run the language server on stdio")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dxc [options] [script.dx]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles a DATEX script into DXB blocks. Reads stdin without a file.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  dxc -e '[1, 2, 3]' -d          # Disassemble a script\n")
		fmt.Fprintf(os.Stderr, "  dxc -e '? + 1' -data '[41]'    # Inject data\n")
		fmt.Fprintf(os.Stderr, "  dxc script.dx -o script.dxb    # Write blocks to a file\n")
		fmt.Fprintf(os.Stderr, "  dxc -info script.dxb           # Show block headers\n")
		fmt.Fprintf(os.Stderr, "\nServers:\n")
		fmt.Fprintf(os.Stderr, "  dxc -serve :4568               # Connect compile service\n")
		fmt.Fprintf(os.Stderr, "  dxc -lsp                       # Language server on stdio\n")
	}
	flag.Parse()

	if *verbose {
		commonlog.Configure(2, nil)
	} else {
		commonlog.Configure(0, nil)
	}

	// Language server talks on stdio, nothing else may write there
	if *lspMode {
		if err := server.NewLSP().Run(); err != nil {
			fail(err)
		}
		return
	}

	if *info {
		for _, path := range flag.Args() {
			if err := printInfo(os.Stdout, path); err != nil {
				fail(err)
			}
		}
		return
	}

	wd, err := os.Getwd()
	if err != nil {
		fail(err)
	}
	m, err := manifest.FindAndLoad(wd)
	if err != nil {
		fail(err)
	}
	opts := &compiler.Options{}
	if m != nil {
		if opts, err = m.Options(); err != nil {
			fail(err)
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "Using manifest %s\n", m.Dir)
		}
	}
	opts.KeepScopeOpen = *keepOpen

	c := compiler.New(nil)
	if path := templatePath(*cachePath, m); path != "" {
		st, err := store.Open(path)
		if err != nil {
			fail(err)
		}
		defer st.Close()
		c.Cache = compiler.NewTemplateCache(st)
	}

	if *serveAddr != "" {
		srv := server.New(c, server.WithDefaults(opts))
		if err := srv.ListenAndServe(*serveAddr); err != nil {
			fail(fmt.Errorf("server error: %w", err))
		}
		return
	}

	source, err := readSource(*expr, flag.Args())
	if err != nil {
		fail(err)
	}
	values, err := parseData(*data)
	if err != nil {
		fail(err)
	}

	var blocks [][]byte
	if *bodyOnly {
		body, err := compiler.CompileBody(source, values, opts)
		if err != nil {
			fail(err)
		}
		blocks = [][]byte{body}
	} else {
		blocks, err = c.CompileCached(context.Background(), source, values, opts)
		if err != nil {
			fail(err)
		}
	}

	switch {
	case *out != "":
		err = writeBlocks(*out, blocks)
	case *disasm:
		err = printDisassembly(os.Stdout, blocks, *bodyOnly)
	case *b64:
		for _, b := range blocks {
			fmt.Println(compiler.EncodeBase64(b))
		}
	default:
		printHex(os.Stdout, blocks)
	}
	if err != nil {
		fail(err)
	}
}

// templatePath picks the template database: the flag wins over the
// manifest.
func templatePath(flagPath string, m *manifest.Manifest) string {
	if flagPath != "" {
		return flagPath
	}
	if m != nil {
		return m.StorePath()
	}
	return ""
}

func readSource(expr string, args []string) (string, error) {
	if expr != "" {
		return expr, nil
	}
	if len(args) == 0 || args[0] == "-" {
		src, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("cannot read stdin: %w", err)
		}
		return string(src), nil
	}
	src, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("cannot read %s: %w", args[0], err)
	}
	return string(src), nil
}

// parseData decodes a JSON array of injected values. Whole numbers become
// integers.
func parseData(s string) ([]any, error) {
	if s == "" {
		return nil, nil
	}
	var values []any
	if err := json.Unmarshal([]byte(s), &values); err != nil {
		return nil, fmt.Errorf("invalid -data: %w", err)
	}
	for i, v := range values {
		values[i] = wholeNumbers(v)
	}
	return values, nil
}

func wholeNumbers(v any) any {
	switch x := v.(type) {
	case float64:
		if x == float64(int64(x)) {
			return int64(x)
		}
	case []any:
		for i := range x {
			x[i] = wholeNumbers(x[i])
		}
	case map[string]any:
		for k := range x {
			x[k] = wholeNumbers(x[k])
		}
	}
	return v
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
