package web

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strconv"

	"github.com/JonMunkholm/xlimport/internal/core"
	"github.com/JonMunkholm/xlimport/internal/logging"
	mw "github.com/JonMunkholm/xlimport/internal/web/middleware"
	"github.com/go-chi/chi/v5"
)

var (
	errNoFile    = errors.New("no file provided")
	errBadOption = errors.New("invalid import option")
)

// multipartOverhead is allowed on top of the file size for form fields
// and part headers.
const multipartOverhead = 1 << 20

// profileView is the API representation of an import profile.
type profileView struct {
	Key        string         `json:"key"`
	Label      string         `json:"label"`
	Collection string         `json:"collection"`
	KeyAttr    string         `json:"keyAttribute"`
	Columns    []columnView   `json:"columns"`
	Registries []registryView `json:"registries,omitempty"`
}

type columnView struct {
	Header    string   `json:"header"`
	Attribute string   `json:"attribute"`
	Kind      string   `json:"kind"`
	Registry  string   `json:"registry,omitempty"`
	Mandatory bool     `json:"mandatory,omitempty"`
	Values    []string `json:"values,omitempty"` // Enum codes
}

type registryView struct {
	Name       string `json:"name"`
	Collection string `json:"collection"`
	SearchOnly bool   `json:"searchOnly,omitempty"`
}

func newProfileView(p core.Profile) profileView {
	v := profileView{
		Key:        p.Key,
		Label:      p.Label,
		Collection: p.Collection,
		KeyAttr:    p.KeyAttr,
		Columns:    make([]columnView, 0, len(p.Columns)),
	}
	for _, c := range p.Columns {
		cv := columnView{Header: c.Header, Attribute: c.Attribute}
		if c.Attribute == p.KeyAttr {
			cv.Kind = core.KindText.String()
		} else if spec, ok := p.Attribute(c.Attribute); ok {
			cv.Kind = spec.Kind.String()
			cv.Registry = spec.Registry
			cv.Mandatory = spec.Mandatory
			cv.Values = enumCodes(spec)
		}
		v.Columns = append(v.Columns, cv)
	}
	for _, r := range p.Registries {
		rs, _ := p.Registry(r.Name)
		v.Registries = append(v.Registries, registryView{Name: rs.Name, Collection: rs.Collection, SearchOnly: rs.SearchOnly})
	}
	return v
}

// enumCodes lists the distinct codes an enum attribute can take, sorted.
func enumCodes(spec core.AttributeSpec) []string {
	if spec.Kind != core.KindEnum {
		return nil
	}
	seen := make(map[string]bool)
	var codes []string
	for _, code := range spec.Synonyms {
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	slices.Sort(codes)
	return codes
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles := s.service.Profiles()
	views := make([]profileView, len(profiles))
	for i, p := range profiles {
		views[i] = newProfileView(p)
	}
	writeJSON(w, views)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := core.Lookup(chi.URLParam(r, "profile"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, newProfileView(p))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.service.LimiterStatus())
}

// handleImport runs a spreadsheet import synchronously and returns its Result.
//
// The multipart form carries the file in "file" and optional boolean switches
// update_existing, create_missing, create_references and dry_run. Unset
// switches take the server defaults.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	profileKey := chi.URLParam(r, "profile")

	maxSize := s.service.MaxFileSize()
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = fmt.Errorf("%w: limit is %d bytes", core.ErrFileTooLarge, maxSize)
		} else {
			err = fmt.Errorf("%w: %v", errNoFile, err)
		}
		s.respondError(w, r, err, statusFor(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	opts, err := s.importOptions(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	ctx := core.ContextWithRequester(r.Context(), requesterFor(r))
	logging.FromContext(ctx).Info("import requested",
		"profile", profileKey,
		"file", header.Filename,
		"size", header.Size,
	)

	result, err := s.service.Import(ctx, profileKey, header.Filename, file, opts)
	if err != nil {
		if errors.Is(err, core.ErrTooManyImports) {
			w.Header().Set("Retry-After", "30")
		}
		s.respondError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, result)
}

// importOptions starts from the configured defaults and applies form overrides.
func (s *Server) importOptions(r *http.Request) (core.Options, error) {
	opts := core.Options{
		UpdateExisting:   s.cfg.Import.UpdateExisting,
		CreateMissing:    s.cfg.Import.CreateMissing,
		CreateReferences: s.cfg.Import.CreateReferences,
	}

	switches := []struct {
		field string
		dst   *bool
	}{
		{"update_existing", &opts.UpdateExisting},
		{"create_missing", &opts.CreateMissing},
		{"create_references", &opts.CreateReferences},
		{"dry_run", &opts.DryRun},
	}
	for _, sw := range switches {
		raw := r.FormValue(sw.field)
		if raw == "" {
			continue
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return core.Options{}, fmt.Errorf("%w: %s=%q", errBadOption, sw.field, raw)
		}
		*sw.dst = b
	}

	if raw := r.FormValue("max_rows"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return core.Options{}, fmt.Errorf("%w: max_rows=%q", errBadOption, raw)
		}
		opts.MaxRows = n
	}
	return opts, nil
}

// requesterFor identifies the caller for logs and the run result.
func requesterFor(r *http.Request) core.Requester {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return core.Requester{
		IPAddress: ip,
		UserAgent: r.UserAgent(),
		Client:    mw.ClientFromContext(r.Context()),
	}
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.Run(chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, result)
}

// handleRunLog returns the plain text report of a run, one line per row.
func (s *Server) handleRunLog(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.Run(chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "import-"+result.RunID+".log"))
	if err := result.WriteLog(w); err != nil {
		logging.FromContext(r.Context()).Error("write run log", "run_id", result.RunID, "error", err)
	}
}
