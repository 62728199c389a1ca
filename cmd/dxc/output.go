package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/chazu/datex/dist"
	"github.com/chazu/datex/pkg/reader"
)

func writeBlocks(path string, blocks [][]byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", path, err)
	}
	defer f.Close()
	for _, b := range blocks {
		if _, err := f.Write(b); err != nil {
			return fmt.Errorf("cannot write %s: %w", path, err)
		}
	}
	return nil
}

func printHex(w io.Writer, blocks [][]byte) {
	for i, b := range blocks {
		fmt.Fprintf(w, "block %d (%d bytes)\n%s", i, len(b), hex.Dump(b))
	}
}

// printDisassembly lists the headers of all blocks followed by the
// instructions of their joined bodies.
func printDisassembly(w io.Writer, blocks [][]byte, bodyOnly bool) error {
	var body []byte
	for _, b := range blocks {
		if bodyOnly {
			body = append(body, b...)
			continue
		}
		if len(b) == 0 {
			continue
		}
		info, err := dist.ParseHeader(b)
		if err != nil {
			return err
		}
		printHeader(w, info)
		if info.Encrypted {
			fmt.Fprintln(w, "(encrypted body)")
			return nil
		}
		body = append(body, info.Body...)
	}
	listing, err := reader.Disassemble(body)
	if err != nil {
		return err
	}
	fmt.Fprint(w, listing)
	return nil
}

func printHeader(w io.Writer, info *dist.BlockInfo) {
	fmt.Fprintf(w, "; %s sid=%d inc=%d return=%d ttl=%d prio=%d size=%d",
		info.Type, info.SID, info.Inc, info.ReturnIndex, info.TTL, info.Prio, info.Size)
	if info.Sender != nil {
		fmt.Fprintf(w, " from=%s", info.Sender)
	}
	if info.Flood {
		fmt.Fprint(w, " to=*")
	} else if info.Receivers != nil {
		fmt.Fprintf(w, " to=%s", info.Receivers)
	}
	if info.EndOfScope {
		fmt.Fprint(w, " eos")
	}
	if info.Signature != nil {
		fmt.Fprint(w, " signed")
	}
	fmt.Fprintln(w)
}

// printInfo prints the headers of the blocks stored back to back in path.
func printInfo(w io.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	for len(data) > 0 {
		info, err := dist.ParseHeader(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		printHeader(w, info)
		n := info.Size
		if n == 0 || n > len(data) {
			n = len(data)
		}
		data = data[n:]
	}
	return nil
}
