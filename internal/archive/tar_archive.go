package archive

import (
	"archive/tar"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/d-zero-dev/nitpicker-go/pkg/failure"
	"github.com/d-zero-dev/nitpicker-go/pkg/fileutil"
)

// catalog is the JSON document embedded in the tar container in place of
// the SQLite database spec §6 describes — see DESIGN.md for why no SQLite
// driver is adopted.
type catalog struct {
	Pages             []Page             `json:"pages"`
	Resources         []Resource         `json:"resources"`
	PageResourceLinks []pageResourceLink `json:"pageResourceLinks"`
	Referrers         []ReferrerRecord   `json:"referrers"`
}

type pageResourceLink struct {
	PageURL     string `json:"pageUrl"`
	ResourceURL string `json:"resourceUrl"`
}

// TarArchive accumulates pages, resources, and HTML snapshots in a staging
// directory, then packages everything into a single uncompressed tar file
// on Close. All mutating methods are serialized through a single mutex,
// mirroring spec §5's "Archive: serialized through a single
// connection/transaction owner."
type TarArchive struct {
	mu sync.Mutex

	outputPath string
	stagingDir string

	pages         map[string]Page
	pageOrder     []string
	resources     map[string]Resource
	resourceOrder []string
	links         []pageResourceLink
	referrers     []ReferrerRecord
	htmlSequence  int
	closed        bool
}

// NewTarArchive creates a staging directory and returns a TarArchive that
// will write the final tar to outputPath on Close.
func NewTarArchive(outputPath string) (*TarArchive, failure.ClassifiedError) {
	stagingDir, err := os.MkdirTemp("", "nitpicker-archive-*")
	if err != nil {
		return nil, &Error{Message: "create staging directory", Cause: err}
	}
	return &TarArchive{
		outputPath: outputPath,
		stagingDir: stagingDir,
		pages:      make(map[string]Page),
		resources:  make(map[string]Resource),
	}, nil
}

func (a *TarArchive) UpsertPage(page Page) failure.ClassifiedError {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.pages[page.URL]; !exists {
		a.pageOrder = append(a.pageOrder, page.URL)
	}
	a.pages[page.URL] = page
	return nil
}

func (a *TarArchive) UpsertResource(resource Resource) failure.ClassifiedError {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.resources[resource.URL]; !exists {
		a.resourceOrder = append(a.resourceOrder, resource.URL)
	}
	a.resources[resource.URL] = resource
	return nil
}

func (a *TarArchive) LinkPageToResource(pageURL, resourceURL string) failure.ClassifiedError {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, existing := range a.links {
		if existing.PageURL == pageURL && existing.ResourceURL == resourceURL {
			return nil
		}
	}
	a.links = append(a.links, pageResourceLink{PageURL: pageURL, ResourceURL: resourceURL})
	return nil
}

func (a *TarArchive) RecordReferrer(from, to, anchorText, through string) failure.ClassifiedError {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.referrers = append(a.referrers, ReferrerRecord{From: from, To: to, AnchorText: anchorText, Through: through})
	return nil
}

// WriteHTML writes html to a safe path under the staging directory,
// derived from pageURL. Path traversal is rejected fatally, per spec
// §7.8; an overlong natural filename falls back to the
// "__file_path_too_long_NNNN.html" scheme with a ".meta.txt" sidecar, per
// spec §6.
func (a *TarArchive) WriteHTML(pageURL, html string) failure.ClassifiedError {
	a.mu.Lock()
	a.htmlSequence++
	sequence := a.htmlSequence
	a.mu.Unlock()

	urlPath := pathForFilename(pageURL)
	resolved, metaName, overlong, err := fileutil.SafePath(filepath.Join(a.stagingDir, "html"), urlPath, sequence)
	if err != nil {
		return &Error{Message: "derive safe path for " + pageURL, Cause: err}
	}

	if ensureErr := fileutil.EnsureDir(filepath.Dir(resolved)); ensureErr != nil {
		return &Error{Message: "ensure html directory", Cause: ensureErr}
	}
	if writeErr := os.WriteFile(resolved, []byte(html), 0o644); writeErr != nil {
		return &Error{Message: "write html for " + pageURL, Cause: writeErr}
	}
	if overlong {
		if writeErr := os.WriteFile(metaName, []byte(pageURL), 0o644); writeErr != nil {
			return &Error{Message: "write overlong-name sidecar for " + pageURL, Cause: writeErr}
		}
	}
	return nil
}

// Close packages the staged catalog and HTML files into a single tar file
// at outputPath, then removes the staging directory.
func (a *TarArchive) Close() failure.ClassifiedError {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	defer os.RemoveAll(a.stagingDir)

	cat := catalog{
		PageResourceLinks: a.links,
		Referrers:         a.referrers,
	}
	for _, u := range a.pageOrder {
		cat.Pages = append(cat.Pages, a.pages[u])
	}
	for _, u := range a.resourceOrder {
		cat.Resources = append(cat.Resources, a.resources[u])
	}

	catalogBytes, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return &Error{Message: "marshal catalog", Cause: err}
	}

	out, err := os.Create(a.outputPath)
	if err != nil {
		return &Error{Message: "create archive file", Cause: err}
	}
	defer out.Close()

	writer := tar.NewWriter(out)
	defer writer.Close()

	if err := writeTarEntry(writer, "catalog.json", catalogBytes); err != nil {
		return &Error{Message: "write catalog entry", Cause: err}
	}

	htmlDir := filepath.Join(a.stagingDir, "html")
	if err := addDirToTar(writer, htmlDir, "html"); err != nil {
		return &Error{Message: "write html entries", Cause: err}
	}

	return nil
}

func writeTarEntry(writer *tar.Writer, name string, data []byte) error {
	header := &tar.Header{Name: name, Size: int64(len(data)), Mode: 0o644}
	if err := writer.WriteHeader(header); err != nil {
		return err
	}
	_, err := writer.Write(data)
	return err
}

func addDirToTar(writer *tar.Writer, dir, archivePrefix string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, entry := range entries {
		fullPath := filepath.Join(dir, entry.Name())
		archiveName := archivePrefix + "/" + entry.Name()
		if entry.IsDir() {
			if err := addDirToTar(writer, fullPath, archiveName); err != nil {
				return err
			}
			continue
		}
		data, err := os.ReadFile(fullPath)
		if err != nil {
			return err
		}
		if err := writeTarEntry(writer, archiveName, data); err != nil {
			return err
		}
	}
	return nil
}

func pathForFilename(pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	p := parsed.Host + parsed.Path
	if parsed.RawQuery != "" {
		p += "_" + parsed.RawQuery
	}
	return p
}
