package sync

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/twigapp/twig/internal/core/dialog"
	"github.com/twigapp/twig/internal/core/outline"
	"github.com/twigapp/twig/internal/core/remote"
)

// EngineState is the resync state machine's coarse state.
type EngineState int

const (
	StateDisabled EngineState = iota
	// StateEnabledNoToken means never synced: the next resync is full.
	StateEnabledNoToken
	// StateEnabledHasToken means incremental resync is possible.
	StateEnabledHasToken
)

// String returns a human-readable state name.
func (s EngineState) String() string {
	switch s {
	case StateEnabledNoToken:
		return "enabled (full resync pending)"
	case StateEnabledHasToken:
		return "enabled"
	default:
		return "disabled"
	}
}

// RecordStore is the durable local record set. Implemented by
// stores.RecordStore.
type RecordStore interface {
	LoadAll(ctx context.Context) ([]outline.Record, error)
	ReplaceAll(ctx context.Context, records []outline.Record) error
	Upsert(ctx context.Context, records ...outline.Record) error
	DeleteIDs(ctx context.Context, ids ...string) error
}

// PersistedState is the engine's cross-cutting durable state.
type PersistedState struct {
	ChangeToken  string
	Enabled      bool
	ActiveRootID string
}

// StateStore persists the change token, the sync intention, and the active
// root id. Implemented by stores.StateStore.
type StateStore interface {
	Load(ctx context.Context) (PersistedState, error)
	SetChangeToken(ctx context.Context, token string) error
	SetEnabled(ctx context.Context, enabled bool) error
	SetActiveRootID(ctx context.Context, id string) error
}

// Config wires an Engine. All collaborators are injected; the engine holds no
// ambient globals.
type Config struct {
	Remote    remote.Service
	Records   RecordStore
	State     StateStore
	ChangeLog *ChangeLog
	Resolver  *Resolver
	Asker     dialog.Asker

	// Apply runs fn on the thread that owns the tree and returns after fn
	// completes. Nil means the tree is owned by the engine's dispatch
	// goroutine and fn runs inline.
	Apply func(fn func())

	Logger zerolog.Logger
}

type task struct {
	fn   func() error
	errc chan error
}

// Engine orchestrates the resync state machine. All work — remote calls and
// bookkeeping alike — executes serialized on one dispatch goroutine, so two
// resyncs, or a resync and a single-record save, can never interleave and race
// on the change token. Public methods are synchronous wrappers around that
// queue. Nothing is retried automatically: failures either surface to the
// user or land durably in the change log for the next connectivity event.
type Engine struct {
	remote    remote.Service
	records   RecordStore
	state     StateStore
	changelog *ChangeLog
	resolver  *Resolver
	asker     dialog.Asker
	apply     func(func())
	log       zerolog.Logger

	queue chan task
	done  chan struct{}

	// The fields below are owned by the dispatch goroutine.
	root         *outline.Node
	index        *outline.Index
	token        remote.ChangeToken
	enabled      bool
	online       bool
	aborted      bool // transport failure seen; transmit nothing until the next resync
	activeRootID string
	versions     map[string]string // id -> last known server version
}

// NewEngine creates an engine and starts its dispatch goroutine.
func NewEngine(cfg Config) *Engine {
	apply := cfg.Apply
	if apply == nil {
		apply = func(fn func()) { fn() }
	}
	e := &Engine{
		remote:    cfg.Remote,
		records:   cfg.Records,
		state:     cfg.State,
		changelog: cfg.ChangeLog,
		resolver:  cfg.Resolver,
		asker:     cfg.Asker,
		apply:     apply,
		log:       cfg.Logger.With().Str("component", "sync").Logger(),
		queue:     make(chan task),
		done:      make(chan struct{}),
		online:    true,
		versions:  make(map[string]string),
	}
	go e.run()
	return e
}

func (e *Engine) run() {
	for {
		select {
		case t := <-e.queue:
			t.errc <- t.fn()
		case <-e.done:
			return
		}
	}
}

// do executes fn on the dispatch goroutine and waits for its result.
func (e *Engine) do(fn func() error) error {
	errc := make(chan error, 1)
	select {
	case e.queue <- task{fn: fn, errc: errc}:
		return <-errc
	case <-e.done:
		return ErrClosed
	}
}

// Close stops the dispatch goroutine. In-flight work completes first.
func (e *Engine) Close() {
	select {
	case <-e.done:
	default:
		close(e.done)
	}
}

// Start loads persisted state, adopts the live tree, and — when sync is
// enabled — performs the launch resync (full without a token, incremental with
// one). Remote problems during the launch resync are handled per policy
// (offline fallback or disable-with-notice) and do not fail Start.
func (e *Engine) Start(ctx context.Context, root *outline.Node, index *outline.Index) error {
	return e.do(func() error {
		st, err := e.state.Load(ctx)
		if err != nil {
			return err
		}
		e.token = remote.ChangeToken(st.ChangeToken)
		e.enabled = st.Enabled
		e.activeRootID = st.ActiveRootID

		recs, err := e.records.LoadAll(ctx)
		if err != nil {
			return err
		}
		e.versions = make(map[string]string, len(recs))
		for _, rec := range recs {
			if rec.Version != "" {
				e.versions[rec.ID] = rec.Version
			}
		}

		e.root = root
		e.index = index

		if e.enabled && e.online {
			if err := e.resync(ctx); err != nil {
				e.log.Warn().Err(err).Msg("launch resync did not complete")
			}
		}
		return nil
	})
}

// Root returns the current tree root. It may change after a full resync.
func (e *Engine) Root() *outline.Node {
	var root *outline.Node
	_ = e.do(func() error {
		root = e.root
		return nil
	})
	return root
}

// State returns the engine's current state-machine state.
func (e *Engine) State() EngineState {
	var s EngineState
	_ = e.do(func() error {
		s = e.currentState()
		return nil
	})
	return s
}

func (e *Engine) currentState() EngineState {
	switch {
	case !e.enabled:
		return StateDisabled
	case e.token == "":
		return StateEnabledNoToken
	default:
		return StateEnabledHasToken
	}
}

// Enable turns sync on. The change token is discarded first: edits made while
// sync was disabled were not tracked against any remote version, so the next
// resync must be full.
func (e *Engine) Enable(ctx context.Context) error {
	return e.do(func() error {
		e.token = ""
		if err := e.state.SetChangeToken(ctx, ""); err != nil {
			return err
		}
		e.enabled = true
		e.aborted = false
		if err := e.state.SetEnabled(ctx, true); err != nil {
			return err
		}
		if !e.online {
			return nil
		}
		return e.resync(ctx)
	})
}

// Disable turns sync off. Local edits continue to be journaled in the change
// log but are not transmitted.
func (e *Engine) Disable(ctx context.Context) error {
	return e.do(func() error {
		e.enabled = false
		return e.state.SetEnabled(ctx, false)
	})
}

// SetOnline records connectivity. An offline-to-online transition triggers a
// resync when sync is enabled.
func (e *Engine) SetOnline(ctx context.Context, online bool) error {
	return e.do(func() error {
		wasOnline := e.online
		e.online = online
		if online {
			e.aborted = false
		}
		if online && !wasOnline && e.enabled {
			return e.resync(ctx)
		}
		return nil
	})
}

// Resync reconciles now: full when no token exists, incremental otherwise.
func (e *Engine) Resync(ctx context.Context) error {
	return e.do(func() error {
		if !e.enabled {
			return fmt.Errorf("sync is disabled")
		}
		if !e.online {
			return fmt.Errorf("offline")
		}
		return e.resync(ctx)
	})
}

// ItemSaved transmits a local edit. Offline, disabled, or aborted, the edit is
// journaled instead. The caller has already persisted the record locally.
func (e *Engine) ItemSaved(ctx context.Context, rec outline.Record) error {
	return e.do(func() error {
		if !e.transmitting() {
			return e.changelog.RecordSaved(rec.ID)
		}

		rec.Version = e.versions[rec.ID]
		res, err := e.remote.Save(ctx, []outline.Record{rec})
		if err != nil {
			return e.handleRemoteError(ctx, err, func() error {
				return e.changelog.RecordSaved(rec.ID)
			})
		}
		if err := e.resolveConflicts(ctx, res.Conflicts); err != nil {
			return err
		}
		if len(res.Failures) > 0 {
			return e.abortSync(ctx, &PartialFailureError{Count: len(res.Failures), First: res.Failures[0].Err})
		}
		return e.recordSaves(ctx, res.Saved)
	})
}

// ItemDeleted transmits a local deletion, or journals it when not
// transmitting. The caller has already removed the record locally.
func (e *Engine) ItemDeleted(ctx context.Context, id string) error {
	return e.do(func() error {
		if !e.transmitting() {
			return e.changelog.RecordDeleted(id)
		}

		res, err := e.remote.Delete(ctx, []string{id})
		if err != nil {
			return e.handleRemoteError(ctx, err, func() error {
				return e.changelog.RecordDeleted(id)
			})
		}
		if len(res.FailedIDs) > 0 {
			return e.abortSync(ctx, &PartialFailureError{Count: len(res.FailedIDs), First: firstError(res.FailedIDs)})
		}
		delete(e.versions, id)
		return nil
	})
}

// PendingChanges returns the number of journaled ids awaiting transmission.
func (e *Engine) PendingChanges() int {
	return len(e.changelog.EditedIDs()) + len(e.changelog.DeletedIDs())
}

func (e *Engine) transmitting() bool {
	return e.enabled && e.online && !e.aborted
}

// handleRemoteError implements the failure policy for a single remote call:
// transport errors fall back to the change log and mark the engine aborted
// until the next resync; account errors disable sync with a user notice;
// anything else bubbles up.
func (e *Engine) handleRemoteError(ctx context.Context, err error, journal func() error) error {
	if remote.IsTransport(err) {
		e.log.Warn().Err(err).Msg("remote unreachable, journaling change")
		e.aborted = true
		return journal()
	}
	if remote.IsAccount(err) {
		return e.abortSync(ctx, err)
	}
	return err
}

// resync runs the state machine's reconcile step and classifies failures.
func (e *Engine) resync(ctx context.Context) error {
	var err error
	if e.token == "" {
		err = e.fullResync(ctx)
	} else {
		err = e.incrementalResync(ctx)
	}
	if err == nil {
		return nil
	}

	if remote.IsTransport(err) {
		// Retryable: pending work is already durable in the change log.
		e.aborted = true
		e.log.Warn().Err(err).Msg("resync interrupted, will retry on next connectivity event")
		return err
	}
	return e.abortSync(ctx, err)
}

// fullResync pushes the entire local record set, resolves conflicts, then
// fetches the resulting full remote state and rebuilds the local tree from it.
func (e *Engine) fullResync(ctx context.Context) error {
	e.log.Info().Msg("starting full resync")

	if err := e.ensureAccount(ctx); err != nil {
		return err
	}

	res, err := e.remote.Save(ctx, e.treeRecords())
	if err != nil {
		return err
	}
	if err := e.resolveConflictsForPush(ctx, res.Conflicts); err != nil {
		return err
	}
	if len(res.Failures) > 0 {
		return &PartialFailureError{Count: len(res.Failures), First: res.Failures[0].Err}
	}

	fetch, err := e.remote.FetchChanges(ctx, "")
	if err != nil {
		return err
	}

	e.versions = make(map[string]string, len(fetch.Changed))
	for _, rec := range fetch.Changed {
		e.versions[rec.ID] = rec.Version
	}

	e.apply(func() { e.rebuildTree(fetch.Changed) })

	stored := e.treeRecords()
	if err := e.records.ReplaceAll(ctx, stored); err != nil {
		return err
	}
	if err := e.state.SetActiveRootID(ctx, e.activeRootID); err != nil {
		return err
	}
	if err := e.changelog.Clear(); err != nil {
		return err
	}
	e.token = fetch.Token
	if err := e.state.SetChangeToken(ctx, string(fetch.Token)); err != nil {
		return err
	}
	e.aborted = false

	e.log.Info().Int("records", len(stored)).Str("token", string(fetch.Token)).Msg("full resync complete")
	return nil
}

// incrementalResync flushes the offline change log first, then fetches and
// applies the remote delta. The ordering guarantees a pending local delete
// cannot be resurrected by a fetch that has not yet seen it.
func (e *Engine) incrementalResync(ctx context.Context) error {
	e.log.Info().Msg("starting incremental resync")

	if err := e.ensureAccount(ctx); err != nil {
		return err
	}

	if err := e.flushChangeLog(ctx); err != nil {
		return err
	}

	fetch, err := e.remote.FetchChanges(ctx, e.token)
	if err != nil {
		return err
	}

	e.apply(func() { e.applyRemoteDelta(ctx, fetch) })

	e.token = fetch.Token
	if err := e.state.SetChangeToken(ctx, string(fetch.Token)); err != nil {
		return err
	}
	e.aborted = false

	e.log.Info().
		Int("changed", len(fetch.Changed)).
		Int("deleted", len(fetch.DeletedIDs)).
		Str("token", string(fetch.Token)).
		Msg("incremental resync complete")
	return nil
}

// flushChangeLog transmits journaled edits and deletions, then clears the log.
func (e *Engine) flushChangeLog(ctx context.Context) error {
	if !e.changelog.HasChanges() {
		return nil
	}

	var toSave []outline.Record
	for _, id := range e.changelog.EditedIDs() {
		node := e.index.Lookup(id)
		if node == nil {
			// Edited then removed locally without a journaled deletion;
			// nothing left to transmit.
			e.log.Debug().Str("id", id).Msg("journaled edit no longer in tree, skipping")
			continue
		}
		rec := node.Record()
		rec.Version = e.versions[id]
		toSave = append(toSave, rec)
	}

	if len(toSave) > 0 {
		res, err := e.remote.Save(ctx, toSave)
		if err != nil {
			return err
		}
		if err := e.resolveConflicts(ctx, res.Conflicts); err != nil {
			return err
		}
		if len(res.Failures) > 0 {
			return &PartialFailureError{Count: len(res.Failures), First: res.Failures[0].Err}
		}
		if err := e.recordSaves(ctx, res.Saved); err != nil {
			return err
		}
	}

	deleted := e.changelog.DeletedIDs()
	if len(deleted) > 0 {
		res, err := e.remote.Delete(ctx, deleted)
		if err != nil {
			return err
		}
		if len(res.FailedIDs) > 0 {
			return &PartialFailureError{Count: len(res.FailedIDs), First: firstError(res.FailedIDs)}
		}
		for _, id := range res.DeletedIDs {
			delete(e.versions, id)
		}
	}

	return e.changelog.Clear()
}

// ensureAccount verifies the remote account is usable before a resync.
func (e *Engine) ensureAccount(ctx context.Context) error {
	status, err := e.remote.EnsureAccountAccess(ctx)
	if err != nil {
		return err
	}
	if status != remote.AccountAvailable {
		return &remote.AccountError{Status: status}
	}
	return nil
}

// resolveConflicts handles conflicts from an interactive save: the user's
// whole-batch choice either resaves merged local copies or applies the server
// copies to the local tree and store.
func (e *Engine) resolveConflicts(ctx context.Context, conflicts []remote.SaveConflict) error {
	if len(conflicts) == 0 {
		return nil
	}

	choice, err := e.resolver.Choose(ctx, len(conflicts))
	if err != nil {
		return err
	}

	switch choice {
	case ChoiceUseLocal:
		merged := make([]outline.Record, 0, len(conflicts))
		for _, c := range conflicts {
			merged = append(merged, MergeLocal(c))
		}
		res, err := e.remote.Save(ctx, merged)
		if err != nil {
			return err
		}
		// The merge was based on the latest server version, so a second
		// rejection means something is broken enough to stop.
		if failed := len(res.Conflicts) + len(res.Failures); failed > 0 {
			return &PartialFailureError{Count: failed, First: fmt.Errorf("conflict resave rejected")}
		}
		return e.recordSaves(ctx, res.Saved)

	default: // ChoiceUseRemote
		for _, c := range conflicts {
			server := c.Server
			e.apply(func() { e.applyRecord(server) })
			e.versions[server.ID] = server.Version
			if err := e.records.Upsert(ctx, server); err != nil {
				return err
			}
		}
		return nil
	}
}

// resolveConflictsForPush handles conflicts during the push phase of a full
// resync. "Use remote" needs no local application: the follow-up full fetch
// rebuilds the tree with the server copies anyway.
func (e *Engine) resolveConflictsForPush(ctx context.Context, conflicts []remote.SaveConflict) error {
	if len(conflicts) == 0 {
		return nil
	}

	choice, err := e.resolver.Choose(ctx, len(conflicts))
	if err != nil {
		return err
	}
	if choice != ChoiceUseLocal {
		return nil
	}

	merged := make([]outline.Record, 0, len(conflicts))
	for _, c := range conflicts {
		merged = append(merged, MergeLocal(c))
	}
	res, err := e.remote.Save(ctx, merged)
	if err != nil {
		return err
	}
	if failed := len(res.Conflicts) + len(res.Failures); failed > 0 {
		return &PartialFailureError{Count: failed, First: fmt.Errorf("conflict resave rejected")}
	}
	return e.recordSaves(ctx, res.Saved)
}

// recordSaves stores the server's accepted copies (carrying fresh version
// metadata) in the version map and the local record store.
func (e *Engine) recordSaves(ctx context.Context, saved []outline.Record) error {
	if len(saved) == 0 {
		return nil
	}
	for _, rec := range saved {
		e.versions[rec.ID] = rec.Version
	}
	return e.records.Upsert(ctx, saved...)
}

// treeRecords projects the live tree into records with the last known server
// versions attached.
func (e *Engine) treeRecords() []outline.Record {
	if e.root == nil {
		return nil
	}
	records := e.root.Records()
	for i := range records {
		records[i].Version = e.versions[records[i].ID]
	}
	return records
}

// rebuildTree replaces the live tree with one reconstructed from the full
// remote record set. Multiple roots are reconciled by the single-root policy;
// unchosen candidates and detached subtrees are re-parented under the chosen
// root rather than discarded. Runs on the tree owner's thread.
func (e *Engine) rebuildTree(records []outline.Record) {
	build := outline.Build(records)
	chosen := outline.ChooseRoot(build.Roots, e.activeRootID)
	if chosen == nil {
		// Remote is empty; the local tree stays authoritative.
		e.index.Reset(e.root)
		return
	}

	for _, other := range build.Roots {
		if other == chosen {
			continue
		}
		e.log.Warn().Str("id", other.ID).Int("leafs", other.LeafCount()).
			Msg("remote store held an extra root, adopting it under the chosen root")
		if err := chosen.InsertChildren([]*outline.Node{other}, chosen.ChildCount()); err != nil {
			e.log.Error().Err(err).Str("id", other.ID).Msg("invariant violation: could not adopt extra root")
		}
	}
	for _, d := range build.Detached {
		e.log.Warn().Str("id", d.Record.ID).Str("parent", d.Record.ParentID).
			Msg("remote record references a missing parent, adopting under root")
		if err := chosen.InsertChildren([]*outline.Node{d.Node}, chosen.ChildCount()); err != nil {
			e.log.Error().Err(err).Str("id", d.Record.ID).Msg("invariant violation: could not adopt detached record")
		}
	}

	e.root = chosen
	e.activeRootID = chosen.ID
	e.index.Reset(chosen)
}

// applyRemoteDelta merges an incremental fetch into the live tree and the
// record store. Runs on the tree owner's thread.
func (e *Engine) applyRemoteDelta(ctx context.Context, fetch remote.FetchResult) {
	// Pass 1: make every changed record's node exist with current payload, so
	// pass 2 can attach children to parents regardless of delta order.
	for _, rec := range fetch.Changed {
		if node := e.index.Lookup(rec.ID); node != nil {
			node.ApplyRecord(rec)
		} else {
			e.index.Add(outline.NewNode(rec.ID, outline.Payload{Text: rec.Text, State: rec.State, Tag: rec.Tag}))
		}
		e.versions[rec.ID] = rec.Version
	}

	// Pass 2: attach and reposition.
	for _, rec := range fetch.Changed {
		e.applyRecord(rec)
	}

	if err := e.records.Upsert(ctx, e.withVersions(fetch.Changed)...); err != nil {
		e.log.Error().Err(err).Msg("failed to persist remote delta")
	}

	var applied []string
	for _, id := range fetch.DeletedIDs {
		// Deletion-vs-modification: modification wins. A pending local edit
		// keeps the item alive; the next flush re-creates it remotely.
		if e.changelog.IsEdited(id) {
			e.log.Info().Str("id", id).Msg("remote deletion skipped, local edit pending")
			continue
		}
		node := e.index.Lookup(id)
		if node == nil {
			applied = append(applied, id)
			continue
		}
		if node == e.root {
			e.log.Error().Str("id", id).Msg("invariant violation: remote deletion targets the root")
			continue
		}
		// The server may report only the subtree root; the descendants go
		// with it, in the tree and in the record store.
		var subtree []string
		node.Walk(func(d *outline.Node) { subtree = append(subtree, d.ID) })

		parent := node.Parent()
		if _, err := parent.RemoveChildren([]int{node.IndexInParent()}); err != nil {
			e.log.Error().Err(err).Str("id", id).Msg("failed to apply remote deletion")
			continue
		}
		// Server-driven removals are not undoable. Pop the batch so 'undo'
		// keeps targeting the user's own removals.
		e.root.DiscardLastDeletion()

		for _, sid := range subtree {
			delete(e.versions, sid)
		}
		applied = append(applied, subtree...)
	}
	if len(applied) > 0 {
		if err := e.records.DeleteIDs(ctx, applied...); err != nil {
			e.log.Error().Err(err).Msg("failed to persist remote deletions")
		}
	}
}

// applyRecord makes the live tree reflect one remote record: payload, parent,
// and position. Unknown parents fall back to the root so no data is dropped.
func (e *Engine) applyRecord(rec outline.Record) {
	node := e.index.Lookup(rec.ID)
	if node == nil {
		node = outline.NewNode(rec.ID, outline.Payload{Text: rec.Text, State: rec.State, Tag: rec.Tag})
		e.index.Add(node)
	} else {
		node.ApplyRecord(rec)
	}
	if node == e.root {
		return
	}

	parent := e.root
	if rec.ParentID != "" {
		if p := e.index.Lookup(rec.ParentID); p != nil {
			parent = p
		} else {
			e.log.Warn().Str("id", rec.ID).Str("parent", rec.ParentID).
				Msg("remote record references a missing parent, placing under root")
		}
	}

	if node.Parent() != parent {
		at := min(rec.Position, parent.ChildCount())
		if err := parent.InsertChildren([]*outline.Node{node}, at); err != nil {
			e.log.Error().Err(err).Str("id", rec.ID).Msg("failed to attach remote record")
		}
		return
	}

	from := node.IndexInParent()
	to := min(rec.Position, parent.ChildCount()-1)
	if from != to {
		if err := parent.MoveChild(from, to); err != nil {
			e.log.Error().Err(err).Str("id", rec.ID).Msg("failed to reposition remote record")
		}
	}
}

func (e *Engine) withVersions(records []outline.Record) []outline.Record {
	out := make([]outline.Record, len(records))
	copy(out, records)
	for i := range out {
		out[i].Version = e.versions[out[i].ID]
	}
	return out
}

// abortSync hard-stops syncing: the intention flag is forced off, persisted,
// and the user is told what happened and how to recover. The engine is the
// only component that makes this decision.
func (e *Engine) abortSync(ctx context.Context, cause error) error {
	e.log.Error().Err(cause).Msg("unrecoverable sync error, disabling sync")

	e.enabled = false
	if err := e.state.SetEnabled(ctx, false); err != nil {
		e.log.Error().Err(err).Msg("failed to persist disabled state")
	}

	if e.asker != nil {
		_, askErr := e.asker.Pose(ctx, dialog.Question{
			Title: "Sync disabled",
			Text: fmt.Sprintf(
				"Syncing stopped because of an error: %v. Check your account, then re-enable sync with \"twig sync enable\".",
				cause),
			Options: []string{"OK"},
		})
		if askErr != nil {
			e.log.Warn().Err(askErr).Msg("failed to notify user")
		}
	}
	return cause
}

func firstError(m map[string]error) error {
	for _, err := range m {
		return err
	}
	return nil
}
