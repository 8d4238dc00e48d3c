package lc

import (
	"archive/tar"
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

// archiveExt maps LC_ARCHIVE_FORMAT values to file suffixes.
func archiveExt(format string) (string, error) {
	switch format {
	case "gz", "":
		return ".tar.gz", nil
	case "zst":
		return ".tar.zst", nil
	case "xz":
		return ".tar.xz", nil
	default:
		return "", fmt.Errorf("unknown archive format %q (expected gz, zst or xz)", format)
	}
}

// createArchive packs srcDir into destPath, rooted at topName inside the
// archive. The codec is chosen from the destination suffix.
func createArchive(srcDir, destPath, topName string) error {
	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create archive %s: %w", destPath, err)
	}
	defer out.Close()

	var (
		cw    io.WriteCloser
		cwerr error
	)
	switch {
	case strings.HasSuffix(destPath, ".tar.gz"):
		cw = pgzip.NewWriter(out)
	case strings.HasSuffix(destPath, ".tar.zst"):
		cw, cwerr = zstd.NewWriter(out)
	case strings.HasSuffix(destPath, ".tar.xz"):
		cw, cwerr = xz.NewWriter(out)
	default:
		return fmt.Errorf("unsupported archive suffix on %s", destPath)
	}
	if cwerr != nil {
		return cwerr
	}

	tw := tar.NewWriter(cw)

	walkErr := filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		name := topName
		if rel != "." {
			name = filepath.Join(topName, rel)
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = name
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if walkErr != nil {
		tw.Close()
		cw.Close()
		return fmt.Errorf("failed to archive %s: %w", srcDir, walkErr)
	}

	if err := tw.Close(); err != nil {
		cw.Close()
		return err
	}
	return cw.Close()
}

// openArchiveReader wraps f with the decompressor matching the path suffix.
func openArchiveReader(path string, f io.Reader) (io.Reader, error) {
	switch {
	case strings.HasSuffix(path, ".tar.gz"), strings.HasSuffix(path, ".tgz"):
		return pgzip.NewReader(f)
	case strings.HasSuffix(path, ".tar.zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	case strings.HasSuffix(path, ".tar.xz"):
		return xz.NewReader(f)
	case strings.HasSuffix(path, ".tar.bz2"):
		// Read-only: nothing here produces bz2, but imported logs may be.
		return bzip2.NewReader(f), nil
	default:
		return nil, fmt.Errorf("unsupported archive suffix on %s", path)
	}
}

// readArchiveText renders a transcript archive as viewable text: the
// contained files concatenated in name order, each under a "==> name <=="
// banner. Binary members (rpms) are listed but not dumped.
func readArchiveText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	r, err := openArchiveReader(path, f)
	if err != nil {
		return "", err
	}

	type member struct {
		name string
		body string
	}
	var members []member

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read archive %s: %w", path, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if isTextMember(hdr.Name) {
			data, err := io.ReadAll(tr)
			if err != nil {
				return "", err
			}
			members = append(members, member{name: hdr.Name, body: string(data)})
		} else {
			members = append(members, member{name: hdr.Name, body: fmt.Sprintf("(binary, %d bytes)\n", hdr.Size)})
		}
	}

	sort.Slice(members, func(i, j int) bool { return members[i].name < members[j].name })

	var sb strings.Builder
	for _, m := range members {
		fmt.Fprintf(&sb, "==> %s <==\n", m.name)
		sb.WriteString(m.body)
		if !strings.HasSuffix(m.body, "\n") {
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func isTextMember(name string) bool {
	switch filepath.Ext(name) {
	case ".log", ".txt", ".json", ".cfg", ".spec":
		return true
	}
	return false
}
