package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/camden-git/faceattend/database"
	"github.com/camden-git/faceattend/models"
	"github.com/camden-git/faceattend/realtime"
	"github.com/camden-git/faceattend/repository"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *capturePublisher) Broadcast(e realtime.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func newTestRepo(t *testing.T) *repository.EmployeeRepository {
	t.Helper()
	db, err := database.InitGormDB(database.SQLiteDSN(filepath.Join(t.TempDir(), "attendance.db")))
	if err != nil {
		t.Fatalf("InitGormDB() error = %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		t.Fatalf("AutoMigrateModels() error = %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	repo := repository.NewEmployeeRepository(db)
	for _, n := range []string{"Alice", "Bob"} {
		if err := repo.Create(context.Background(), &models.Employee{Name: n, Department: "R&D"}); err != nil {
			t.Fatalf("Create(%s) error = %v", n, err)
		}
	}
	return repo
}

func TestRecord_IdempotentPerDay(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	pub := &capturePublisher{}
	rec := NewAttendanceRecorder(repo, pub, time.Second, 3)

	morning := time.Date(2024, 3, 1, 9, 0, 0, 0, time.Local)

	outcome, err := rec.Record(ctx, "Alice", morning)
	if err != nil || outcome != OutcomeRecorded {
		t.Fatalf("first Record() = %q, %v; want recorded", outcome, err)
	}
	outcome, err = rec.Record(ctx, "Alice", morning.Add(3*time.Hour))
	if err != nil || outcome != OutcomeAlreadyRecordedToday {
		t.Fatalf("second Record() = %q, %v; want already_recorded_today", outcome, err)
	}
	outcome, err = rec.Record(ctx, "Alice", morning.Add(24*time.Hour))
	if err != nil || outcome != OutcomeRecorded {
		t.Fatalf("next day Record() = %q, %v; want recorded", outcome, err)
	}

	records, err := repo.ListAttendanceByDate(ctx, "2024-03-01")
	if err != nil {
		t.Fatalf("ListAttendanceByDate() error = %v", err)
	}
	if len(records) != 1 || records[0].Time != "09:00:00" || records[0].EmployeeName != "Alice" {
		t.Errorf("records = %+v, want one 09:00:00 row for Alice", records)
	}

	alice, err := repo.FindEmployeeByName(ctx, "Alice")
	if err != nil {
		t.Fatal(err)
	}
	if alice.Status != models.EmployeeStatusPresent {
		t.Errorf("status = %q, want %q", alice.Status, models.EmployeeStatusPresent)
	}
	if len(pub.events) != 2 {
		t.Errorf("published %d events, want 2 (one per recorded day)", len(pub.events))
	}
}

func TestRecord_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	rec := NewAttendanceRecorder(repo, nil, time.Second, 3)

	for _, name := range []string{"Mallory", "UNKNOWN", ""} {
		outcome, err := rec.Record(ctx, name, time.Now())
		if err != nil || outcome != OutcomeNotFound {
			t.Errorf("Record(%q) = %q, %v; want not_found", name, outcome, err)
		}
	}
	records, err := repo.ListAttendanceByDate(ctx, time.Now().Format(models.DateLayout))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("NotFound produced %d rows", len(records))
	}
}

func TestRecord_ConcurrentUploadsRecordOnce(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	rec := NewAttendanceRecorder(repo, nil, 5*time.Second, 3)
	when := time.Date(2024, 5, 2, 8, 30, 0, 0, time.Local)

	var recorded, already int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := rec.Record(ctx, "Bob", when)
			if err != nil {
				t.Errorf("Record() error = %v", err)
				return
			}
			switch outcome {
			case OutcomeRecorded:
				atomic.AddInt32(&recorded, 1)
			case OutcomeAlreadyRecordedToday:
				atomic.AddInt32(&already, 1)
			}
		}()
	}
	wg.Wait()

	if recorded != 1 || already != 9 {
		t.Errorf("recorded = %d, already = %d; want 1 and 9", recorded, already)
	}
	records, err := repo.ListAttendanceByDate(ctx, "2024-05-02")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Errorf("rows = %d, want 1", len(records))
	}
}

// flakyDirectory fails every call until failures is exhausted.
type flakyDirectory struct {
	repository.EmployeeDirectory
	failures int32
	calls    int32
	block    bool
}

func (d *flakyDirectory) FindEmployeeByName(ctx context.Context, name string) (*models.Employee, error) {
	atomic.AddInt32(&d.calls, 1)
	if d.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if atomic.AddInt32(&d.failures, -1) >= 0 {
		return nil, errors.New("connection reset by peer")
	}
	return d.EmployeeDirectory.FindEmployeeByName(ctx, name)
}

func TestRecord_RetriesTransientFailures(t *testing.T) {
	dir := &flakyDirectory{EmployeeDirectory: newTestRepo(t), failures: 2}
	rec := NewAttendanceRecorder(dir, nil, time.Second, 3)
	rec.Backoff = time.Millisecond

	outcome, err := rec.Record(context.Background(), "Alice", time.Now())
	if err != nil || outcome != OutcomeRecorded {
		t.Errorf("Record() = %q, %v; want recorded after retries", outcome, err)
	}
	if dir.calls != 3 {
		t.Errorf("FindEmployeeByName calls = %d, want 3", dir.calls)
	}
}

func TestRecord_ServiceUnavailable(t *testing.T) {
	tests := []struct {
		name string
		dir  *flakyDirectory
	}{
		{name: "persistent errors", dir: &flakyDirectory{failures: 100}},
		{name: "store hangs", dir: &flakyDirectory{block: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewAttendanceRecorder(tt.dir, nil, 20*time.Millisecond, 3)
			rec.Backoff = time.Millisecond

			start := time.Now()
			_, err := rec.Record(context.Background(), "Alice", time.Now())
			if !errors.Is(err, ErrServiceUnavailable) {
				t.Errorf("Record() error = %v, want ErrServiceUnavailable", err)
			}
			if tt.dir.calls != 3 {
				t.Errorf("calls = %d, want 3", tt.dir.calls)
			}
			if elapsed := time.Since(start); elapsed > 2*time.Second {
				t.Errorf("Record() took %v, timeouts not applied", elapsed)
			}
		})
	}
}

var errConnReset = errors.New("connection reset by peer")

// scriptedDirectory knows a single employee and plays appendErrs, one per
// AppendAttendance attempt. with writeOnFail an attempt that reports a
// transient error still stores the row, like an insert whose reply was lost.
type scriptedDirectory struct {
	mu          sync.Mutex
	appendErrs  []error
	writeOnFail bool
	stored      *models.AttendanceRecord
	appends     int
	setPresent  int
}

func (d *scriptedDirectory) FindEmployeeByName(ctx context.Context, name string) (*models.Employee, error) {
	return &models.Employee{ID: 7, Name: name}, nil
}

func (d *scriptedDirectory) HasAttendanceToday(ctx context.Context, employeeID uint, date string) (bool, error) {
	return false, nil
}

func (d *scriptedDirectory) AppendAttendance(ctx context.Context, record *models.AttendanceRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	if d.appends < len(d.appendErrs) {
		err = d.appendErrs[d.appends]
	}
	d.appends++
	if d.stored == nil && (err == nil || (d.writeOnFail && !errors.Is(err, repository.ErrDuplicateAttendance))) {
		row := *record
		d.stored = &row
	}
	return err
}

func (d *scriptedDirectory) SetPresent(ctx context.Context, employeeID uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setPresent++
	return nil
}

func (d *scriptedDirectory) GetAttendance(ctx context.Context, employeeID uint, date string) (*models.AttendanceRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stored == nil {
		return nil, repository.ErrAttendanceNotFound
	}
	row := *d.stored
	return &row, nil
}

func TestRecord_DuplicateFromStore(t *testing.T) {
	dup := repository.ErrDuplicateAttendance
	otherWriter := func() *models.AttendanceRecord {
		return &models.AttendanceRecord{EmployeeID: 7, Date: "2024-06-03", Time: "07:45:10", CreatedAt: 1717400710}
	}

	tests := []struct {
		name           string
		dir            *scriptedDirectory
		want           RecordOutcome
		wantSetPresent int
		wantEvents     int
	}{
		{
			name: "duplicate on first attempt",
			dir:  &scriptedDirectory{appendErrs: []error{dup}, stored: otherWriter()},
			want: OutcomeAlreadyRecordedToday,
		},
		{
			name:           "lost reply then duplicate of own row",
			dir:            &scriptedDirectory{appendErrs: []error{errConnReset, dup}, writeOnFail: true},
			want:           OutcomeRecorded,
			wantSetPresent: 1,
			wantEvents:     1,
		},
		{
			name: "failed attempt then duplicate of another writer's row",
			dir:  &scriptedDirectory{appendErrs: []error{errConnReset, dup}, stored: otherWriter()},
			want: OutcomeAlreadyRecordedToday,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &capturePublisher{}
			rec := NewAttendanceRecorder(tt.dir, pub, time.Second, 3)
			rec.Backoff = time.Millisecond

			when := time.Date(2024, 6, 3, 9, 15, 0, 0, time.Local)
			outcome, err := rec.Record(context.Background(), "Carol", when)
			if err != nil {
				t.Fatalf("Record() error = %v", err)
			}
			if outcome != tt.want {
				t.Errorf("Record() = %q, want %q", outcome, tt.want)
			}
			if tt.dir.setPresent != tt.wantSetPresent {
				t.Errorf("SetPresent calls = %d, want %d", tt.dir.setPresent, tt.wantSetPresent)
			}
			if len(pub.events) != tt.wantEvents {
				t.Errorf("published %d events, want %d", len(pub.events), tt.wantEvents)
			}
		})
	}
}

// staleCheckDirectory reports no attendance yet, as if the check ran just
// before another recorder's insert.
type staleCheckDirectory struct {
	repository.EmployeeDirectory
}

func (d staleCheckDirectory) HasAttendanceToday(ctx context.Context, employeeID uint, date string) (bool, error) {
	return false, nil
}

func TestRecord_TwoRecordersShareStore(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	pubA, pubB := &capturePublisher{}, &capturePublisher{}
	recA := NewAttendanceRecorder(repo, pubA, time.Second, 3)
	recB := NewAttendanceRecorder(staleCheckDirectory{repo}, pubB, time.Second, 3)
	when := time.Date(2024, 6, 4, 8, 0, 0, 0, time.Local)

	outcome, err := recA.Record(ctx, "Alice", when)
	if err != nil || outcome != OutcomeRecorded {
		t.Fatalf("recorder A Record() = %q, %v; want recorded", outcome, err)
	}
	outcome, err = recB.Record(ctx, "Alice", when.Add(time.Minute))
	if err != nil || outcome != OutcomeAlreadyRecordedToday {
		t.Fatalf("recorder B Record() = %q, %v; want already_recorded_today", outcome, err)
	}
	if len(pubB.events) != 0 {
		t.Errorf("recorder B published %d events, want 0", len(pubB.events))
	}

	var recorded int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		rec := recA
		if i%2 == 1 {
			rec = recB
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := rec.Record(ctx, "Bob", when)
			if err != nil {
				t.Errorf("Record() error = %v", err)
				return
			}
			if outcome == OutcomeRecorded {
				atomic.AddInt32(&recorded, 1)
			}
		}()
	}
	wg.Wait()

	if recorded != 1 {
		t.Errorf("recorded = %d across both recorders, want 1", recorded)
	}
	records, err := repo.ListAttendanceByDate(ctx, "2024-06-04")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("rows = %d, want one each for Alice and Bob", len(records))
	}
}
