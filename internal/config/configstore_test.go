/*
Copyright © contributors to CloudNativePG, established as
CloudNativePG a Series of LF Projects, LLC.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.

SPDX-License-Identifier: Apache-2.0
*/

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pgautoctl/pgautoctl/internal/fsm"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "config suite")
}

var _ = Describe("pg_autoctl.cfg round trip", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "pgautoctl-config-")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	It("creates a config file from scratch", func() {
		store := NewStore(filepath.Join(dir, "pg_autoctl.cfg"))

		setup := PgSetup{
			PgData:            filepath.Join(dir, "data"),
			PgHost:            "localhost",
			PgPort:            5432,
			Nodename:          "node-a",
			Formation:         "default",
			GroupID:           0,
			MonitorURI:        "postgresql://monitor/pg_auto_failover",
			CandidatePriority: 100,
			ReplicationQuorum: true,
		}

		Expect(store.Save(setup)).To(Succeed())

		loaded, err := store.Load()
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.PgData).To(Equal(setup.PgData))
		Expect(loaded.PgPort).To(Equal(5432))
		Expect(loaded.Nodename).To(Equal("node-a"))
		Expect(loaded.CandidatePriority).To(Equal(100))
		Expect(loaded.ReplicationQuorum).To(BeTrue())
	})

	It("preserves unmanaged keys across a save", func() {
		path := filepath.Join(dir, "pg_autoctl.cfg")
		Expect(os.WriteFile(path, []byte("[extra]\nnote = hand-edited\n"), 0600)).To(Succeed())

		store := NewStore(path)
		Expect(store.Save(PgSetup{Nodename: "node-a"})).To(Succeed())

		v, err := store.Get("extra.note")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal("hand-edited"))
	})

	It("round-trips the disabled-monitor sentinel", func() {
		store := NewStore(filepath.Join(dir, "pg_autoctl.cfg"))
		Expect(store.Save(PgSetup{MonitorURI: DisabledMonitorURI})).To(Succeed())

		loaded, err := store.Load()
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.MonitorDisabled()).To(BeTrue())
	})

	It("supports get/set of a single key", func() {
		store := NewStore(filepath.Join(dir, "pg_autoctl.cfg"))
		Expect(store.Save(PgSetup{Nodename: "node-a"})).To(Succeed())

		Expect(store.SetKey("pg_autoctl.nodename", "node-b")).To(Succeed())
		v, err := store.Get("pg_autoctl.nodename")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal("node-b"))

		_, err = store.Get("pg_autoctl.nonexistent")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("pg_autoctl.state round trip", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "pgautoctl-state-")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	It("defaults to INIT/INIT when no file exists", func() {
		store := NewStateStore(filepath.Join(dir, "pg_autoctl.state"))
		state, err := store.Load()
		Expect(err).NotTo(HaveOccurred())
		Expect(state.CurrentState).To(Equal(fsm.Init))
		Expect(state.AssignedGoal).To(Equal(fsm.Init))
	})

	It("round-trips a saved state", func() {
		store := NewStateStore(filepath.Join(dir, "pg_autoctl.state"))

		saved := NodeState{
			CurrentState:    fsm.Secondary,
			AssignedGoal:    fsm.Secondary,
			LastReportedLSN: "3BB/A9FFFBE8",
			LastReportedAt:  time.Now().Truncate(time.Second),
		}
		Expect(store.Save(saved)).To(Succeed())

		loaded, err := store.Load()
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.CurrentState).To(Equal(fsm.Secondary))
		Expect(loaded.LastReportedLSN).To(Equal(saved.LastReportedLSN))
		Expect(loaded.LastReportedAt.Equal(saved.LastReportedAt)).To(BeTrue())
	})
})
