package mbox

import (
	"fmt"
	"io"
	"os"

	"github.com/inbucket/mfck/pkg/bytestr"
	"github.com/inbucket/mfck/pkg/config"
	"github.com/inbucket/mfck/pkg/diag"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

const (
	readInitialSize  = 64 * 1024
	readGrowthFactor = 1.5
)

// readContents returns the file's bytes, memory mapped read-only when the
// file is large enough and mapping is permitted.  Mapping failures fall back
// to plain reads.
func readContents(f *os.File, cfg *config.Core, con *diag.Console) (bytestr.String, error) {
	size := -1
	if fi, err := f.Stat(); err == nil {
		size = int(fi.Size())
	}
	if cfg.UseMmap && size >= cfg.MmapMin {
		data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_PRIVATE)
		if err == nil {
			log.Debug().Str("module", "mbox").Str("path", f.Name()).Int("size", size).
				Msg("Mapped mailbox")
			return bytestr.New(data, bytestr.Mapped), nil
		}
		con.Warnf("Could not mmap file %s: %v", f.Name(), err)
	}
	return readGrown(f, size)
}

// readGrown slurps the file into a grown buffer.
func readGrown(f *os.File, size int) (bytestr.String, error) {
	if size < 0 {
		size = readInitialSize
	}
	if size == 0 {
		size = 1
	}
	data := make([]byte, size)
	offset := 0
	for {
		n, err := f.Read(data[offset:])
		offset += n
		if err == io.EOF {
			break
		}
		if err != nil {
			return bytestr.String{}, fmt.Errorf("reading %s: %v: %w",
				f.Name(), err, diag.ErrResource)
		}
		if offset == len(data) {
			grown := make([]byte, int(float64(len(data))*readGrowthFactor)+1)
			copy(grown, data)
			data = grown
		}
	}
	return bytestr.New(data[:offset], bytestr.Owned), nil
}
