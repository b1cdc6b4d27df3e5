// Package server provides a small REST API for submitting bag build
// requests and following their progress. Builds run in background worker
// goroutines; a build registry (either an embedded QL database or MySQL)
// keeps the record of every request across restarts.
package server

import (
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // for pprof server
	"sync"

	"github.com/facebookgo/httpdown"
	"github.com/julienschmidt/httprouter"

	"github.com/archivelib/bagbuilder/bagit"
)

// Version of the bag builder service.
const Version = "1.0.0"

// RESTServer holds the configuration for a bag builder API server.
//
// Set the public fields and then call Run. Run will listen on the given
// port and handle requests until Stop is called. Do not change any fields
// after calling Run.
type RESTServer struct {
	// Port number to listen on. Defaults to 14000.
	PortNumber string
	PProfPort  string

	// Validator does authentication by validating any user tokens
	// presented to the API. If this is nil then no authentication will
	// be done.
	Validator TokenDecoder

	// Pass in a dial command to use a MySQL server for the build
	// registry, e.g. "user:password@tcp(localhost:3306)/dbname".
	// Otherwise a lightweight internal database is used at RegistryPath.
	MySQL string

	// RegistryPath is the file to keep the internal build registry in
	// when MySQL is not used. The special value "memory" keeps the
	// registry entirely in the server's memory (useful for testing).
	RegistryPath string

	// Default algorithm lists for builds that do not choose their own.
	// Empty means the standard default set.
	ManifestAlgorithms    []string
	TagManifestAlgorithms []string

	// Registry is the build record store. Usually left nil; Run sets it
	// up from MySQL or RegistryPath.
	Registry BuildDB

	server httpdown.Server // used to close our listening socket
	buildq chan string     // feeds queued build ids to the workers
	wg     sync.WaitGroup  // tracks the build workers
	cancel chan struct{}   // closed to tell workers to exit
}

// the number of builds run at a given time. Checksumming is I/O heavy, so
// more workers mostly just fight over the disk.
const MaxConcurrentBuilds = 2

// Run initializes the registry and the build workers, and then blocks
// listening for and handling http requests.
func (s *RESTServer) Run() error {
	log.Println("==========")
	log.Printf("Starting Bag Builder Server version %s", Version)

	if s.PortNumber == "" {
		s.PortNumber = "14000"
	}
	if s.Validator == nil {
		log.Println("No Validator given")
		s.Validator = NewNobodyDecoder()
	}

	// make sure bad algorithm names surface at startup, not per request
	if _, err := bagit.NewChecksumSet(s.ManifestAlgorithms, s.TagManifestAlgorithms); err != nil {
		log.Println(err)
		return err
	}

	if s.Registry == nil {
		var err error
		if s.MySQL != "" {
			log.Printf("Using MySQL registry")
			s.Registry, err = NewMysqlRegistry(s.MySQL)
		} else {
			path := s.RegistryPath
			if path == "" {
				path = "memory"
			}
			log.Printf("Using internal registry at %s", path)
			s.Registry, err = NewQlRegistry(path)
		}
		if err != nil {
			return err
		}
	}

	log.Println("Starting build workers")
	s.buildq = make(chan string, 100) // 100 is arbitrary. don't expect that many.
	s.cancel = make(chan struct{})
	for i := 0; i < MaxConcurrentBuilds; i++ {
		s.wg.Add(1)
		go s.buildWorker()
	}
	go s.requeueBuilds() // run in background

	// for pprof
	if s.PProfPort != "" {
		log.Println("Starting PProf on port", s.PProfPort)
		go func() {
			log.Println(http.ListenAndServe(":"+s.PProfPort, nil))
		}()
	}
	log.Println("Listening on", s.PortNumber)

	h := httpdown.HTTP{}
	var err error
	s.server, err = h.ListenAndServe(&http.Server{
		Addr:    ":" + s.PortNumber,
		Handler: s.addRoutes(),
	})
	if err != nil {
		log.Println(err)
		return err
	}
	return s.server.Wait()
}

// Stop will stop the server and return when all the server goroutines
// have exited and the socket is closed.
func (s *RESTServer) Stop() error {
	// first shut down the build workers
	close(s.cancel)
	s.wg.Wait()

	// then shut down all the HTTP connections
	return s.server.Stop()
}

// requeueBuilds puts builds that were queued or running when the server
// last exited back onto the build queue. It may block until they are all
// enqueued.
func (s *RESTServer) requeueBuilds() {
	ids, err := s.Registry.ListBuilds()
	if err != nil {
		log.Println("requeue:", err)
		return
	}
	for _, id := range ids {
		r, err := s.Registry.LookupBuild(id)
		if err != nil || r == nil {
			continue
		}
		if r.Status != StatusQueued && r.Status != StatusRunning {
			continue
		}
		select {
		case s.buildq <- id:
		case <-s.cancel:
			return
		}
	}
}

func (s *RESTServer) addRoutes() http.Handler {
	var routes = []struct {
		method  string
		route   string
		role    Role // RoleUnknown means no API key is needed to access
		handler httprouter.Handle
	}{
		{"POST", "/bag", RoleWrite, s.NewBuildHandler},
		{"GET", "/bag", RoleRead, s.ListBuildsHandler},
		{"GET", "/bag/:id", RoleRead, s.BuildInfoHandler},
		{"GET", "/bag/:id/log", RoleRead, s.BuildLogHandler},

		// other
		{"GET", "/", RoleUnknown, WelcomeHandler},
		{"GET", "/debug/vars", RoleUnknown, VarHandler}, // standard route for expvars data
	}

	r := httprouter.New()
	for _, route := range routes {
		r.Handle(route.method,
			route.route,
			logWrapper(s.authzWrapper(route.handler, route.role)))
	}
	return r
}

// General route handlers and convenience functions

// WelcomeHandler identifies the service and its version.
func WelcomeHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	fmt.Fprintf(w, "Bag Builder version %s\n", Version)
}

// VarHandler adapts the expvar default handler to the httprouter three parameter handler.
func VarHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	// this code is taken from the stdlib expvar package.
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	fmt.Fprintf(w, "{\n")
	first := true
	expvar.Do(func(kv expvar.KeyValue) {
		if !first {
			fmt.Fprintf(w, ",\n")
		}
		first = false
		fmt.Fprintf(w, "%q: %s", kv.Key, kv.Value)
	})
	fmt.Fprintf(w, "\n}\n")
}

// authzWrapper returns a Handler which will first verify the user token as
// having at least the given Role. The user name is added as a parameter
// "username".
func (s *RESTServer) authzWrapper(handler httprouter.Handle, leastRole Role) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token := r.Header.Get("X-Api-Key")
		user, role, err := s.Validator.TokenDecode(token)
		if err != nil {
			w.WriteHeader(500)
			fmt.Fprintln(w, err.Error())
			return
		}

		// is role valid?
		if role < leastRole {
			w.WriteHeader(401)
			fmt.Fprintln(w, "Forbidden")
			return
		}

		// remove any previous username
		for i := range ps {
			if ps[i].Key == "username" {
				ps[i].Value = user
				goto out
			}
		}
		// add a new username if none found
		ps = append(ps, httprouter.Param{Key: "username", Value: user})
	out:
		handler(w, r, ps)
	}
}

// logWrapper takes a handler and returns a handler which does the same thing,
// after first logging the request URL.
func logWrapper(handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		log.Println(r.Method, r.URL)
		handler(w, r, ps)
	}
}
