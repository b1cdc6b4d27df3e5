package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"sync"
	"time"

	raven "github.com/getsentry/raven-go"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/archivelib/bagbuilder/bagit"
	"github.com/archivelib/bagbuilder/builder"
)

// buildRequest is the JSON body of a POST /bag request.
type buildRequest struct {
	// Source is the intellectual entity directory on the server's
	// filesystem. Required, and must be an absolute path.
	Source string `json:"source"`

	// Destination is where the finished bag goes. Empty means the bag
	// replaces Source in place.
	Destination string `json:"destination,omitempty"`

	// ExistOK lets an existing Destination be replaced.
	ExistOK bool `json:"exist_ok,omitempty"`

	// Parallelism bounds concurrent checksumming. Zero means sequential.
	Parallelism int `json:"parallelism,omitempty"`

	// Encoding for the bag's tag and manifest files. Empty means UTF-8.
	Encoding string `json:"encoding,omitempty"`

	// Info holds the bag-info.txt fields, in map form. Keys with
	// multiple values are written once per value.
	Info map[string][]string `json:"info,omitempty"`

	// Per-request algorithm lists. Empty means the server's defaults.
	ManifestAlgorithms    []string `json:"manifest_algorithms,omitempty"`
	TagManifestAlgorithms []string `json:"tagmanifest_algorithms,omitempty"`
}

// NewBuildHandler handles requests to POST /bag. The request body is a
// JSON buildRequest. The build is queued and its id returned right away;
// poll GET /bag/:id to see how it went.
func (s *RESTServer) NewBuildHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req buildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintln(w, err.Error())
		return
	}
	if req.Source == "" {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintln(w, "source is required")
		return
	}
	if !filepath.IsAbs(req.Source) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintln(w, "source must be an absolute path")
		return
	}
	if req.Destination != "" && !filepath.IsAbs(req.Destination) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintln(w, "destination must be an absolute path")
		return
	}

	id := uuid.New().String()
	rec := BuildRecord{
		ID:          id,
		Source:      req.Source,
		Destination: req.Destination,
		Status:      StatusQueued,
		Created:     time.Now(),
	}
	if err := s.Registry.NewBuild(rec); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintln(w, err.Error())
		return
	}
	s.saveRequest(id, req)
	select {
	case s.buildq <- id:
	default:
		// queue full. refuse rather than block the handler
		takeRequest(id)
		rec.Status = StatusError
		rec.Error = "build queue is full; resubmit later"
		rec.Finished = time.Now()
		s.Registry.UpdateBuild(rec)
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "build queue is full")
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"id": id})
}

// BuildInfoHandler handles requests to GET /bag/:id.
func (s *RESTServer) BuildInfoHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	rec, err := s.Registry.LookupBuild(id)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintln(w, err.Error())
		return
	}
	if rec == nil {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintln(w, "Unknown build", id)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(rec)
}

// BuildLogHandler handles requests to GET /bag/:id/log, returning the
// build's log as plain text.
func (s *RESTServer) BuildLogHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	rec, err := s.Registry.LookupBuild(id)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintln(w, err.Error())
		return
	}
	if rec == nil {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintln(w, "Unknown build", id)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, rec.Log)
}

// ListBuildsHandler handles requests to GET /bag, returning the list of
// build ids, newest first.
func (s *RESTServer) ListBuildsHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ids, err := s.Registry.ListBuilds()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintln(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(ids)
}

// The build queue only carries ids, so the full request rides alongside
// in this map until a worker picks it up. Requests requeued after a
// restart are absent and fail with an explanatory error.
var pendingRequests struct {
	sync.Mutex
	m map[string]buildRequest
}

func (s *RESTServer) saveRequest(id string, req buildRequest) {
	pendingRequests.Lock()
	if pendingRequests.m == nil {
		pendingRequests.m = make(map[string]buildRequest)
	}
	pendingRequests.m[id] = req
	pendingRequests.Unlock()
}

func takeRequest(id string) (buildRequest, bool) {
	pendingRequests.Lock()
	req, ok := pendingRequests.m[id]
	delete(pendingRequests.m, id)
	pendingRequests.Unlock()
	return req, ok
}

// buildWorker takes build ids off the queue and runs them, until the
// cancel channel is closed.
func (s *RESTServer) buildWorker() {
	defer s.wg.Done()
	for {
		select {
		case id := <-s.buildq:
			s.runBuild(id)
		case <-s.cancel:
			return
		}
	}
}

// runBuild performs the build for the given record and saves the outcome.
func (s *RESTServer) runBuild(id string) {
	rec, err := s.Registry.LookupBuild(id)
	if err != nil || rec == nil {
		return
	}
	rec.Status = StatusRunning
	s.Registry.UpdateBuild(*rec)

	req, ok := takeRequest(id)
	if !ok {
		rec.Status = StatusError
		rec.Error = "build request was lost in a server restart; resubmit it"
		rec.Finished = time.Now()
		s.Registry.UpdateBuild(*rec)
		return
	}

	manifestAlgs := req.ManifestAlgorithms
	if len(manifestAlgs) == 0 {
		manifestAlgs = s.ManifestAlgorithms
	}
	tagAlgs := req.TagManifestAlgorithms
	if len(tagAlgs) == 0 {
		tagAlgs = s.TagManifestAlgorithms
	}

	b, err := builder.New(manifestAlgs, tagAlgs)
	if err != nil {
		rec.Status = StatusError
		rec.Error = err.Error()
		rec.Finished = time.Now()
		s.Registry.UpdateBuild(*rec)
		return
	}

	info := bagit.NewTagMap()
	var keys []string
	for k := range req.Info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range req.Info[k] {
			info.Add(k, v)
		}
	}

	bag, err := b.BuildBag(builder.Options{
		Source:      req.Source,
		Info:        info,
		Dest:        req.Destination,
		ExistOK:     req.ExistOK,
		Parallelism: req.Parallelism,
		Encoding:    req.Encoding,
	})
	rec.Log = b.Log.String()
	rec.Finished = time.Now()
	if err != nil {
		raven.CaptureError(err, map[string]string{
			"source":      req.Source,
			"destination": req.Destination,
		})
		rec.Status = StatusError
		rec.Error = err.Error()
		s.Registry.UpdateBuild(*rec)
		return
	}

	rec.Status = StatusOK
	if octets, count, oerr := bagit.ParseOxum(bag.Info().Value("Payload-Oxum")); oerr == nil {
		rec.OxumOctets = octets
		rec.OxumFiles = int64(count)
	}
	s.Registry.UpdateBuild(*rec)
}
