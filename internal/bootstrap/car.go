package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-varint"

	"github.com/intercoop-network/dag-core/internal/canon"
	"github.com/intercoop-network/dag-core/internal/dagstore"
	"github.com/intercoop-network/dag-core/pkg/utils"
)

// carHeader is the unkeyed, length-prefixed header of a CAR archive: a root
// Cid list and a format version, DAG-CBOR-encoded and written as the
// archive's first length-prefixed segment, ahead of any (length, Cid,
// data) block.
type carHeader struct {
	Roots   []string `cbor:"roots"`
	Version int      `cbor:"version"`
}

// ManifestFile describes one exported block under the manifest's files
// list.
type ManifestFile struct {
	Path        string `json:"path"`
	CID         string `json:"cid"`
	Size        int    `json:"size"`
	ContentType string `json:"content_type"`
}

// Manifest is the JSON structure the export root Cid addresses.
type Manifest struct {
	FederationName  string         `json:"federation_name"`
	FederationID    string         `json:"federation_id"`
	BundleCID       string         `json:"bundle_cid,omitempty"`
	GenesisEventCID string         `json:"genesis_event_cid"`
	Files           []ManifestFile `json:"files"`
	Timestamp       string         `json:"timestamp"`
}

func writeHeaderBlock(w io.Writer, data []byte) error {
	if _, err := w.Write(varint.ToUvarint(uint64(len(data)))); err != nil {
		return utils.Wrap(utils.KindStorage, err, "write car header length")
	}
	if _, err := w.Write(data); err != nil {
		return utils.Wrap(utils.KindStorage, err, "write car header data")
	}
	return nil
}

func writeBlock(w io.Writer, c cid.Cid, data []byte) error {
	cidBytes := c.Bytes()
	length := uint64(len(cidBytes) + len(data))
	if _, err := w.Write(varint.ToUvarint(length)); err != nil {
		return utils.Wrap(utils.KindStorage, err, "write car block length")
	}
	if _, err := w.Write(cidBytes); err != nil {
		return utils.Wrap(utils.KindStorage, err, "write car block cid")
	}
	if _, err := w.Write(data); err != nil {
		return utils.Wrap(utils.KindStorage, err, "write car block data")
	}
	return nil
}

func readHeaderBlock(r *bytes.Reader) ([]byte, error) {
	length, err := varint.ReadUvarint(r)
	if err != nil {
		return nil, utils.Wrap(utils.KindStructural, err, "read car header length")
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, utils.Wrap(utils.KindStorage, err, "read car header body")
	}
	return buf, nil
}

func readBlock(r *bytes.Reader) (cid.Cid, []byte, error) {
	length, err := varint.ReadUvarint(r)
	if err != nil {
		if err == io.EOF {
			return cid.Undef, nil, io.EOF
		}
		return cid.Undef, nil, utils.Wrap(utils.KindStorage, err, "read car block length")
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return cid.Undef, nil, utils.Wrap(utils.KindStorage, err, "read car block body")
	}
	c, n, err := cid.CidFromBytes(buf)
	if err != nil {
		return cid.Undef, nil, utils.Wrap(utils.KindStructural, err, "parse car block cid")
	}
	return c, buf[n:], nil
}

// Export writes a CAR archive covering federationID's entire DAG to w.
// genesisCID is the federation's FederationGenesis node Cid; bundleCID, if
// non-empty, is the current TrustBundle anchored for this federation.
func Export(w io.Writer, store dagstore.Store, federationID, federationName, genesisCID, bundleCID string, now time.Time) error {
	ctx := context.Background()
	nodes, err := store.GetOrderedNodes(ctx)
	if err != nil {
		return err
	}

	files := make([]ManifestFile, 0, len(nodes))
	blocks := make(map[string][]byte, len(nodes))
	for _, n := range nodes {
		if n.Inner.Metadata.FederationID != "" && n.Inner.Metadata.FederationID != federationID {
			continue
		}
		c, err := n.CID()
		if err != nil {
			return err
		}
		raw, err := n.MarshalForStorage()
		if err != nil {
			return err
		}
		blocks[c.String()] = raw
		files = append(files, ManifestFile{
			Path:        c.String() + ".cbor",
			CID:         c.String(),
			Size:        len(raw),
			ContentType: "application/vnd.icn.dag-node+cbor",
		})
	}

	manifest := Manifest{
		FederationName:  federationName,
		FederationID:    federationID,
		BundleCID:       bundleCID,
		GenesisEventCID: genesisCID,
		Files:           files,
		Timestamp:       now.UTC().Format(time.RFC3339),
	}
	manifestBytes, err := json.Marshal(manifest)
	if err != nil {
		return utils.Wrap(utils.KindStructural, err, "marshal export manifest")
	}
	manifestCID, err := canon.ComputeCID(manifestBytes)
	if err != nil {
		return err
	}

	header := carHeader{Roots: []string{manifestCID.String()}, Version: 1}
	headerBytes, err := canon.Encode(header)
	if err != nil {
		return err
	}
	if err := writeHeaderBlock(w, headerBytes); err != nil {
		return err
	}
	if err := writeBlock(w, manifestCID, manifestBytes); err != nil {
		return err
	}
	for _, f := range files {
		c, err := canon.ParseCID(f.CID)
		if err != nil {
			return err
		}
		if err := writeBlock(w, c, blocks[f.CID]); err != nil {
			return err
		}
	}
	return nil
}

// Import reads a CAR archive produced by Export, verifies that every file
// Cid referenced by the manifest is present as a block, and returns the
// manifest plus the raw block bytes keyed by Cid string. It does not insert
// the blocks into a DAGStore — callers do that node by node through the
// normal AddNode validation path, so that signature and parent-presence
// checks still apply on import.
func Import(r io.Reader) (Manifest, map[string][]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Manifest{}, nil, utils.Wrap(utils.KindStorage, err, "read car archive")
	}
	br := bytes.NewReader(data)

	headerBytes, err := readHeaderBlock(br)
	if err != nil {
		return Manifest{}, nil, utils.Wrap(utils.KindStructural, err, "read car header")
	}
	var header carHeader
	if err := canon.Decode(headerBytes, &header); err != nil {
		return Manifest{}, nil, err
	}
	if header.Version != 1 {
		return Manifest{}, nil, utils.New(utils.KindStructural, "unsupported car archive version")
	}
	if len(header.Roots) == 0 {
		return Manifest{}, nil, utils.New(utils.KindStructural, "car header lists no roots")
	}

	blocks := make(map[string][]byte)
	for {
		c, body, err := readBlock(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return Manifest{}, nil, err
		}
		blocks[c.String()] = body
	}

	manifestBytes, ok := blocks[header.Roots[0]]
	if !ok {
		return Manifest{}, nil, utils.New(utils.KindStructural, "car archive missing root block: "+header.Roots[0])
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return Manifest{}, nil, utils.Wrap(utils.KindStructural, err, "unmarshal export manifest")
	}

	for _, f := range manifest.Files {
		if _, ok := blocks[f.CID]; !ok {
			return Manifest{}, nil, utils.New(utils.KindStructural, "manifest references missing block: "+f.CID)
		}
	}
	return manifest, blocks, nil
}
