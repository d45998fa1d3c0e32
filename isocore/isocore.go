// Package isocore binds three corelog.Cores — data, verkle (inner
// nodes), and sig — under one directory into a single append-only,
// signed Merkle log. Appending a message extends the data log, then
// walks every covering-index node the append completes, recomputing
// and persisting each one in the inner log, then bags the current
// peaks into a global root and appends an Ed25519-signed record of it.
// Reading a message walks the inverse path and fails closed on any
// hash mismatch.
package isocore

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/r3e-network/isocore/corelog"
	"github.com/r3e-network/isocore/covering"
	"github.com/r3e-network/isocore/internal/config"
	"github.com/r3e-network/isocore/internal/hexutil"
	"github.com/r3e-network/isocore/internal/logging"
	"github.com/r3e-network/isocore/internal/metrics"
	"github.com/r3e-network/isocore/internal/xerrors"
	"github.com/r3e-network/isocore/keypair"
)

const (
	infoFileName   = "info"
	dataDirName    = "data"
	verkleDirName  = "verkle"
	sigDirName     = "sig"
	coreFileName   = "core.nd"
	lockFileName   = ".lock"

	// DefaultWidth is the W the store's covering index is built over.
	DefaultWidth = 8

	infoFormatVersion = 0
)

// ChildKind distinguishes a leaf child descriptor (a data message) from
// a branch child descriptor (another inner node).
type ChildKind uint8

const (
	ChildLeaf ChildKind = iota
	ChildBranch
)

func (k ChildKind) String() string {
	if k == ChildBranch {
		return "branch"
	}
	return "leaf"
}

// Child is one entry in a Node's ordered child list.
type Child struct {
	Kind  ChildKind
	Hash  [32]byte
	Index uint64 // an ItemId for a leaf child, a NodeId for a branch child
}

// Node is one covering-index node of the inner (verkle) log. Its Hash
// is always Blake3 over the concatenation of its children's hashes, in
// order; it is never trusted from the wire, only recomputed.
type Node struct {
	Hash     [32]byte
	Children []Child
}

func computeNodeHash(children []Child) [32]byte {
	buf := make([]byte, 0, 32*len(children))
	for _, c := range children {
		buf = append(buf, c.Hash[:]...)
	}
	return keypair.Hash(buf)
}

// EncodeNode renders a Node in the on-disk text format: an advisory
// hash line followed by one "<kind> <hex hash> <hex index>.bin" line
// per child.
func EncodeNode(n Node) []byte {
	var buf bytes.Buffer
	buf.WriteString(hexutil.EncodeToString(n.Hash[:]))
	buf.WriteByte('\n')
	for _, c := range n.Children {
		buf.WriteString(c.Kind.String())
		buf.WriteByte(' ')
		buf.WriteString(hexutil.EncodeToString(c.Hash[:]))
		buf.WriteByte(' ')
		fmt.Fprintf(&buf, "%04x.bin\n", c.Index)
	}
	return buf.Bytes()
}

// DecodeNode parses a Node from its on-disk text form. The stored hash
// line is advisory and discarded; the returned Node's Hash is always
// recomputed from its children.
func DecodeNode(data []byte) (Node, error) {
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return Node{}, xerrors.InvalidFormat("empty node record")
	}
	lines := strings.Split(text, "\n")

	children := make([]Child, 0, len(lines)-1)
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return Node{}, xerrors.InvalidFormat("malformed node child line").WithDetail("line", line)
		}

		var kind ChildKind
		switch fields[0] {
		case "leaf":
			kind = ChildLeaf
		case "branch":
			kind = ChildBranch
		default:
			return Node{}, xerrors.InvalidFormat("unknown node child kind").WithDetail("kind", fields[0])
		}

		hashBytes, err := hexutil.DecodeFixed(fields[1], 32)
		if err != nil {
			return Node{}, xerrors.Wrap(xerrors.CodeInvalidFormat, "decode child hash", err)
		}

		indexHex := strings.TrimSuffix(fields[2], ".bin")
		index, err := strconv.ParseUint(indexHex, 16, 64)
		if err != nil {
			return Node{}, xerrors.Wrap(xerrors.CodeInvalidFormat, "decode child index", err)
		}

		var hash [32]byte
		copy(hash[:], hashBytes)
		children = append(children, Child{Kind: kind, Hash: hash, Index: index})
	}

	return Node{Hash: computeNodeHash(children), Children: children}, nil
}

// SignatureBlock is one append's Ed25519 signature over the global root
// computed for the prefix ending at that append.
type SignatureBlock struct {
	GlobalRoot [32]byte
	Signature  keypair.Signature
}

// EncodeSignatureBlock renders sb as "<hex global root>\n<64 raw
// signature bytes>".
func EncodeSignatureBlock(sb SignatureBlock) []byte {
	buf := make([]byte, 0, 64+1+ed25519.SignatureSize)
	buf = append(buf, []byte(hexutil.EncodeToString(sb.GlobalRoot[:]))...)
	buf = append(buf, '\n')
	buf = append(buf, sb.Signature[:]...)
	return buf
}

// DecodeSignatureBlock parses a SignatureBlock from its on-disk form.
func DecodeSignatureBlock(data []byte) (SignatureBlock, error) {
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		return SignatureBlock{}, xerrors.InvalidFormat("signature block missing newline separator")
	}
	rest := data[idx+1:]
	if len(rest) != ed25519.SignatureSize {
		return SignatureBlock{}, xerrors.InvalidFormat("signature block has wrong signature length").
			WithDetail("got", len(rest))
	}

	rootBytes, err := hexutil.DecodeFixed(string(data[:idx]), 32)
	if err != nil {
		return SignatureBlock{}, xerrors.Wrap(xerrors.CodeInvalidFormat, "decode global root", err)
	}

	var sb SignatureBlock
	copy(sb.GlobalRoot[:], rootBytes)
	copy(sb.Signature[:], rest)
	return sb, nil
}

// IsoCore is a single signed, append-only, content-addressed log store.
type IsoCore struct {
	path      string
	width     uint64
	publicKey ed25519.PublicKey

	data   *corelog.Core
	verkle *corelog.Core
	sig    *corelog.Core

	lock *os.File

	Logger  *logging.Logger
	Metrics *metrics.Recorder
}

// Create initializes a brand-new IsoCore at path: it creates the
// directory layout, writes the info file carrying publicKey, and
// creates the three empty NeoDisks.
func Create(path string, publicKey ed25519.PublicKey, frameSize, zstdLevel, cacheSize int, width uint64) (*IsoCore, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return nil, xerrors.InvalidFormat("public key must be 32 bytes").WithDetail("got", len(publicKey))
	}
	if width == 0 {
		width = DefaultWidth
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, xerrors.IOError("create store directory", err)
	}

	lock, err := acquireLock(path)
	if err != nil {
		return nil, err
	}

	info := make([]byte, 0, ed25519.PublicKeySize+1)
	info = append(info, publicKey...)
	info = append(info, infoFormatVersion)
	if err := os.WriteFile(filepath.Join(path, infoFileName), info, 0o644); err != nil {
		releaseLock(lock, path)
		return nil, xerrors.IOError("write info file", err)
	}

	data, verkle, sig, err := createCores(path, frameSize, zstdLevel, cacheSize)
	if err != nil {
		releaseLock(lock, path)
		return nil, err
	}

	pub := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(pub, publicKey)

	return &IsoCore{path: path, width: width, publicKey: pub, data: data, verkle: verkle, sig: sig, lock: lock}, nil
}

// CreateFromConfig is Create using the knobs carried by cfg.
func CreateFromConfig(path string, publicKey ed25519.PublicKey, cfg config.Config) (*IsoCore, error) {
	return Create(path, publicKey, cfg.FrameSize, cfg.ZstdLevel, cfg.CacheSize, cfg.CoveringWidth)
}

// Load reopens an existing IsoCore at path for further reads and
// appends, reading its stored public key from the info file.
func Load(path string, cacheSize int, width uint64) (*IsoCore, error) {
	if width == 0 {
		width = DefaultWidth
	}

	lock, err := acquireLock(path)
	if err != nil {
		return nil, err
	}

	info, err := os.ReadFile(filepath.Join(path, infoFileName))
	if err != nil {
		releaseLock(lock, path)
		return nil, xerrors.IOError("read info file", err)
	}
	if len(info) < ed25519.PublicKeySize {
		releaseLock(lock, path)
		return nil, xerrors.InvalidFormat("info file shorter than a public key")
	}
	publicKey := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(publicKey, info[:ed25519.PublicKeySize])

	data, verkle, sig, err := loadCores(path, cacheSize)
	if err != nil {
		releaseLock(lock, path)
		return nil, err
	}

	return &IsoCore{path: path, width: width, publicKey: publicKey, data: data, verkle: verkle, sig: sig, lock: lock}, nil
}

// LoadFromConfig is Load using the knobs carried by cfg.
func LoadFromConfig(path string, cfg config.Config) (*IsoCore, error) {
	return Load(path, cfg.CacheSize, cfg.CoveringWidth)
}

func createCores(path string, frameSize, zstdLevel, cacheSize int) (data, verkle, sig *corelog.Core, err error) {
	data, err = corelog.Create(corePath(path, dataDirName), frameSize, zstdLevel, cacheSize)
	if err != nil {
		return nil, nil, nil, err
	}
	verkle, err = corelog.Create(corePath(path, verkleDirName), frameSize, zstdLevel, cacheSize)
	if err != nil {
		data.Close()
		return nil, nil, nil, err
	}
	sig, err = corelog.Create(corePath(path, sigDirName), frameSize, zstdLevel, cacheSize)
	if err != nil {
		data.Close()
		verkle.Close()
		return nil, nil, nil, err
	}
	return data, verkle, sig, nil
}

func loadCores(path string, cacheSize int) (data, verkle, sig *corelog.Core, err error) {
	data, err = corelog.Load(corePath(path, dataDirName), cacheSize)
	if err != nil {
		return nil, nil, nil, err
	}
	verkle, err = corelog.Load(corePath(path, verkleDirName), cacheSize)
	if err != nil {
		data.Close()
		return nil, nil, nil, err
	}
	sig, err = corelog.Load(corePath(path, sigDirName), cacheSize)
	if err != nil {
		data.Close()
		verkle.Close()
		return nil, nil, nil, err
	}
	return data, verkle, sig, nil
}

func corePath(root, subdir string) string {
	dir := filepath.Join(root, subdir)
	os.MkdirAll(dir, 0o755)
	return filepath.Join(dir, coreFileName)
}

func acquireLock(path string) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(path, lockFileName), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, xerrors.Locked(path)
		}
		return nil, xerrors.IOError("acquire lock", err)
	}
	return f, nil
}

func releaseLock(f *os.File, path string) error {
	if f == nil {
		return nil
	}
	f.Close()
	if err := os.Remove(filepath.Join(path, lockFileName)); err != nil && !os.IsNotExist(err) {
		return xerrors.IOError("release lock", err)
	}
	return nil
}

// SetObservability wires logger and metrics into the IsoCore and its
// three underlying Cores.
func (ic *IsoCore) SetObservability(logger *logging.Logger, rec *metrics.Recorder) {
	ic.Logger = logger
	ic.Metrics = rec
	ic.data.Logger, ic.data.Metrics = logger, rec
	ic.verkle.Logger, ic.verkle.Metrics = logger, rec
	ic.sig.Logger, ic.sig.Metrics = logger, rec
}

// PublicKey returns the store's owner public key.
func (ic *IsoCore) PublicKey() ed25519.PublicKey {
	return ic.publicKey
}

// Len returns the number of messages appended so far.
func (ic *IsoCore) Len() covering.ItemId {
	return covering.ItemId(ic.data.Len())
}

func signerMismatch() *xerrors.Error {
	return xerrors.New(xerrors.CodeSignatureInvalid, "signer public key does not match the store's public key")
}

// Append writes message to the data log, extends the inner log with
// every covering node the append completes, bags the current peaks
// into a global root, signs it with signer, and records the signature.
// It returns the global root for this append.
func (ic *IsoCore) Append(message []byte, signer keypair.KeyPair) ([32]byte, error) {
	start := time.Now()
	if !bytes.Equal(signer.Public, ic.publicKey) {
		return [32]byte{}, signerMismatch()
	}

	dataIndex, err := ic.data.Append(message)
	if err != nil {
		return [32]byte{}, err
	}
	leafHash := keypair.Hash(message)
	item := covering.ItemId(dataIndex)

	startNode, endNode := covering.CoveringsForItem(item, ic.width)
	for y := startNode; y < endNode; y++ {
		children := covering.ChildrenForCovering(y, ic.width)

		var node Node
		if len(children) == 0 {
			node = Node{Children: []Child{{Kind: ChildLeaf, Hash: leafHash, Index: uint64(dataIndex)}}}
		} else {
			nodeChildren := make([]Child, 0, len(children))
			for _, c := range children {
				childNode, err := ic.loadNode(c)
				if err != nil {
					return [32]byte{}, err
				}
				nodeChildren = append(nodeChildren, Child{Kind: ChildBranch, Hash: childNode.Hash, Index: uint64(c)})
			}
			node = Node{Children: nodeChildren}
		}
		node.Hash = computeNodeHash(node.Children)

		verkleID, err := ic.verkle.Append(EncodeNode(node))
		if err != nil {
			return [32]byte{}, err
		}
		if uint64(verkleID) != uint64(y) {
			return [32]byte{}, xerrors.InvalidFormat("inner node appended at an unexpected slot").
				WithDetail("want", uint64(y)).WithDetail("got", uint64(verkleID))
		}
	}

	peaks := covering.GetPeaks(uint64(item)+1, ic.width)
	peakHashes := make([]byte, 0, 32*len(peaks))
	for _, p := range peaks {
		peakNode, err := ic.loadNode(p)
		if err != nil {
			return [32]byte{}, err
		}
		peakHashes = append(peakHashes, peakNode.Hash[:]...)
	}
	globalRoot := keypair.Hash(peakHashes)

	signature := signer.Sign(globalRoot[:])
	sigBlock := SignatureBlock{GlobalRoot: globalRoot, Signature: signature}
	if _, err := ic.sig.Append(EncodeSignatureBlock(sigBlock)); err != nil {
		return [32]byte{}, err
	}

	if ic.Logger != nil {
		ic.Logger.Op(ic.path, "append", strconv.FormatUint(uint64(item), 10), time.Since(start))
	}
	if ic.Metrics != nil {
		ic.Metrics.ObserveAppend("isocore", time.Since(start).Seconds())
	}

	return globalRoot, nil
}

func (ic *IsoCore) loadNode(y covering.CoveringId) (Node, error) {
	raw, err := ic.verkle.Get(corelog.MessageId(y))
	if err != nil {
		return Node{}, err
	}
	return DecodeNode(raw)
}

// Read returns the message at itemId, verifying its Blake3 hash against
// the leaf hash recorded in the inner log.
func (ic *IsoCore) Read(itemId covering.ItemId) ([]byte, error) {
	start := time.Now()

	leafNodeId, _ := covering.CoveringsForItem(itemId, ic.width)
	node, err := ic.loadNode(leafNodeId)
	if err != nil {
		return nil, err
	}
	if len(node.Children) != 1 || node.Children[0].Kind != ChildLeaf {
		return nil, xerrors.InvalidFormat("leaf covering node is not a single leaf child").
			WithDetail("item", uint64(itemId))
	}
	leaf := node.Children[0]

	data, err := ic.data.Get(corelog.MessageId(leaf.Index))
	if err != nil {
		return nil, err
	}

	if keypair.Hash(data) != leaf.Hash {
		if ic.Metrics != nil {
			ic.Metrics.IncVerifyFailure()
		}
		return nil, xerrors.HashMismatch(uint64(itemId))
	}

	if ic.Logger != nil {
		ic.Logger.Op(ic.path, "read", strconv.FormatUint(uint64(itemId), 10), time.Since(start))
	}
	if ic.Metrics != nil {
		ic.Metrics.ObserveRead("isocore", time.Since(start).Seconds())
	}

	return data, nil
}

// Flush persists all three underlying logs to disk.
func (ic *IsoCore) Flush() error {
	if err := ic.data.Flush(); err != nil {
		return err
	}
	if err := ic.verkle.Flush(); err != nil {
		return err
	}
	return ic.sig.Flush()
}

// Close flushes nothing implicitly; it closes the three underlying
// logs and releases the advisory lock file.
func (ic *IsoCore) Close() error {
	var firstErr error
	for _, err := range []error{ic.data.Close(), ic.verkle.Close(), ic.sig.Close()} {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := releaseLock(ic.lock, ic.path); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
