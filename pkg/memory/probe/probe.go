// Copyright The NRI Plugins Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package probe checks which memory backends of an allocator work.
package probe

import (
	"bytes"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	logger "github.com/containers/nri-memalloc/pkg/log"
	"github.com/containers/nri-memalloc/pkg/memory"
	"github.com/containers/nri-memalloc/pkg/memory/native"
	"github.com/containers/nri-memalloc/pkg/utils"
)

var log = logger.Get("probe")

// Result is the outcome of probing a single backend.
type Result struct {
	Backend   memory.Backend   `json:"backend"`
	Supported bool             `json:"supported"`
	Kind      memory.ErrorKind `json:"-"`
	KindName  string           `json:"errorKind,omitempty"`
	Error     string           `json:"error,omitempty"`
	Status    native.Status    `json:"status,omitempty"`
	FreeClean bool             `json:"freeClean"`
	Duration  time.Duration    `json:"duration"`
}

// Report is the outcome of probing all backends.
type Report struct {
	Runtime   string   `json:"runtime"`
	Size      uint64   `json:"size"`
	Results   []Result `json:"results"`
	RoundTrip string   `json:"roundTrip,omitempty"`
}

// Run allocates and frees size bytes from every backend of the allocator.
func Run(a *memory.Allocator, size uint64) *Report {
	r := &Report{
		Runtime: a.Runtime().Name(),
		Size:    size,
	}

	for _, b := range memory.Backends() {
		r.Results = append(r.Results, probe(a, b, size))
	}

	return r
}

func probe(a *memory.Allocator, b memory.Backend, size uint64) Result {
	res := Result{Backend: b}

	start := time.Now()
	ptr, err := a.Allocate(b, size)
	res.Duration = time.Since(start)

	if err != nil {
		res.Kind = memory.Classify(err)
		res.KindName = res.Kind.String()
		res.Error = err.Error()
		res.Supported = res.Kind != memory.KindUnsupported

		var berr *memory.BackendError
		if errors.As(err, &berr) {
			res.Status = berr.Status
		}

		log.Info("%s: %s allocation failed: %v", b, utils.FormatSize(size), err)
		return res
	}

	res.Supported = true
	if status := a.GetDeleter(b).Free(ptr); !status.IsSuccess() {
		res.Status = status
		log.Warn("%s: freeing %s failed: %s", b, utils.FormatSize(size), status)
		return res
	}
	res.FreeClean = a.Runtime().PeekAtLastError().IsSuccess()

	log.Info("%s: allocated and freed %s in %s", b, utils.FormatSize(size), res.Duration)

	return res
}

// Result returns the result for the given backend.
func (r *Report) Result(b memory.Backend) (Result, bool) {
	for _, res := range r.Results {
		if res.Backend == b {
			return res, true
		}
	}
	return Result{}, false
}

// Failed returns true if any supported backend failed.
func (r *Report) Failed() bool {
	for _, res := range r.Results {
		if res.Supported && (res.Error != "" || !res.FreeClean) {
			return true
		}
	}
	return false
}

// String renders the report as a table.
func (r *Report) String() string {
	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "runtime %s, probing with %s\n", r.Runtime, utils.FormatSize(r.Size))

	w := tabwriter.NewWriter(buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BACKEND\tSUPPORTED\tRESULT\tSTATUS\tTIME")
	fmt.Fprintln(w, "-------\t---------\t------\t------\t----")

	for _, res := range r.Results {
		var (
			result = "ok"
			status = "-"
		)
		switch {
		case res.Error != "":
			result = res.KindName
			if res.Status != native.StatusSuccess {
				status = res.Status.String()
			}
		case !res.FreeClean:
			result = "free failed"
			if res.Status != native.StatusSuccess {
				status = res.Status.String()
			}
		}
		fmt.Fprintf(w, "%s\t%v\t%s\t%s\t%s\n", res.Backend, res.Supported, result, status,
			res.Duration.Round(time.Microsecond))
	}
	w.Flush()

	if r.RoundTrip != "" {
		fmt.Fprintf(buf, "round trip: %s\n", r.RoundTrip)
	}

	return buf.String()
}
