// Package main provides the IsoCore CLI for creating, appending to, and
// reading from a signed log store.
//
// Usage:
//
//	isocli create <path>                  - Create a new store with a fresh key pair
//	isocli append <path> <text>            - Append a text message and flush
//	isocli read <path> <item_id>           - Read back one message by index
//	isocli len <path>                      - Print the number of appended messages
package main

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"strconv"

	"github.com/r3e-network/isocore/covering"
	"github.com/r3e-network/isocore/internal/config"
	"github.com/r3e-network/isocore/internal/logging"
	"github.com/r3e-network/isocore/internal/xerrors"
	"github.com/r3e-network/isocore/isocore"
	"github.com/r3e-network/isocore/keypair"
)

func main() {
	if len(os.Args) < 3 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()
	logger := logging.New("isocli", cfg.LogLevel, cfg.LogFormat)

	cmd := os.Args[1]
	path := os.Args[2]
	args := os.Args[3:]

	var err error
	switch cmd {
	case "create":
		err = cmdCreate(cfg, path)
	case "append":
		err = cmdAppend(cfg, logger, path, args)
	case "read":
		err = cmdRead(cfg, logger, path, args)
	case "len":
		err = cmdLen(cfg, path)
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		kind := "unknown"
		if e, ok := xerrors.As(err); ok {
			kind = string(e.Code)
		}
		fmt.Fprintf(os.Stderr, "error [%s]: %v\n", kind, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`isocli - signed append-only log store CLI

Usage:
  isocli create <path>             Create a new store with a fresh key pair
  isocli append <path> <text>      Append a text message and flush
  isocli read <path> <item_id>     Read back one message by index
  isocli len <path>                Print the number of appended messages

Environment Variables:
  ISOCORE_FRAME_SIZE, ISOCORE_ZSTD_LEVEL, ISOCORE_CACHE_SIZE,
  ISOCORE_COVERING_WIDTH, ISOCORE_LOG_LEVEL, ISOCORE_LOG_FORMAT`)
}

func cmdCreate(cfg config.Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	kp, err := keypair.Generate()
	if err != nil {
		return err
	}

	ic, err := isocore.CreateFromConfig(path, kp.Public, cfg)
	if err != nil {
		return err
	}
	defer ic.Close()

	// A freshly created store has no frames yet; flushing now still
	// writes each NeoDisk's footer, so the very next append or read
	// (which reopens via neodisk.Open/OpenReader) finds a well-formed
	// file instead of one shorter than a footer.
	if err := ic.Flush(); err != nil {
		return err
	}

	keyPath := path + ".key"
	if err := os.WriteFile(keyPath, kp.Private, 0o600); err != nil {
		return xerrors.IOError("write private key", err)
	}

	fmt.Printf("created store at %s\npublic key: %x\nprivate key saved to %s\n", path, kp.Public, keyPath)
	return nil
}

func cmdAppend(cfg config.Config, logger *logging.Logger, path string, args []string) error {
	if len(args) < 1 {
		return xerrors.InvalidFormat("usage: isocli append <path> <text>")
	}

	kp, err := loadSigner(path)
	if err != nil {
		return err
	}

	ic, err := isocore.LoadFromConfig(path, cfg)
	if err != nil {
		return err
	}
	defer ic.Close()
	ic.SetObservability(logger, nil)

	root, err := ic.Append([]byte(args[0]), kp)
	if err != nil {
		return err
	}
	if err := ic.Flush(); err != nil {
		return err
	}

	fmt.Printf("appended at item %d, global root: %x\n", ic.Len()-1, root)
	return nil
}

func cmdRead(cfg config.Config, logger *logging.Logger, path string, args []string) error {
	if len(args) < 1 {
		return xerrors.InvalidFormat("usage: isocli read <path> <item_id>")
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return xerrors.InvalidFormat("item_id must be a non-negative integer")
	}

	ic, err := isocore.LoadFromConfig(path, cfg)
	if err != nil {
		return err
	}
	defer ic.Close()
	ic.SetObservability(logger, nil)

	data, err := ic.Read(covering.ItemId(id))
	if err != nil {
		return err
	}

	os.Stdout.Write(data)
	fmt.Println()
	return nil
}

func cmdLen(cfg config.Config, path string) error {
	ic, err := isocore.LoadFromConfig(path, cfg)
	if err != nil {
		return err
	}
	defer ic.Close()

	fmt.Println(uint64(ic.Len()))
	return nil
}

func loadSigner(path string) (keypair.KeyPair, error) {
	infoPath := path + ".key"
	priv, err := os.ReadFile(infoPath)
	if err != nil {
		return keypair.KeyPair{}, xerrors.IOError("read private key", err)
	}
	if len(priv) != ed25519.PrivateKeySize {
		return keypair.KeyPair{}, xerrors.InvalidFormat("private key file has the wrong size")
	}
	privateKey := ed25519.PrivateKey(priv)
	return keypair.KeyPair{Public: privateKey.Public().(ed25519.PublicKey), Private: privateKey}, nil
}
