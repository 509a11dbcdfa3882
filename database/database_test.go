package database_test

import (
	"errors"
	"reflect"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/camden-git/faceattend/database"
	"github.com/camden-git/faceattend/media"
)

func Test_SampleStore_Get(t *testing.T) {
	tests := []struct {
		name       string                // Name of the test case
		beforeTest func(sqlmock.Sqlmock) // Setup mock expectations
		want       []byte
		wantErr    error
	}{
		{
			name: "sample found",
			beforeTest: func(mockSQL sqlmock.Sqlmock) {
				mockSQL.
					ExpectQuery(regexp.QuoteMeta(`SELECT data FROM face_samples WHERE person = ? AND seq = ?`)).
					WithArgs("Alice", 2).
					WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte{1, 2, 3}))
			},
			want: []byte{1, 2, 3},
		},
		{
			name: "sample missing",
			beforeTest: func(mockSQL sqlmock.Sqlmock) {
				mockSQL.
					ExpectQuery(regexp.QuoteMeta(`SELECT data FROM face_samples`)).
					WithArgs("Alice", 2).
					WillReturnRows(sqlmock.NewRows([]string{"data"}))
			},
			wantErr: media.ErrSampleNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockDB, mockSQL, err := sqlmock.New()
			if err != nil {
				t.Fatalf("sqlmock.New() error = %v", err)
			}
			defer mockDB.Close()

			tt.beforeTest(mockSQL)
			store := database.NewSampleStore(mockDB)

			got, err := store.Get("Alice", 2)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Get() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Errorf("Get() unexpected error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Get() = %v, want %v", got, tt.want)
			}
			if err := mockSQL.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func Test_SampleStore_Put(t *testing.T) {
	tests := []struct {
		name       string
		beforeTest func(sqlmock.Sqlmock)
		wantErr    bool
	}{
		{
			name: "insert ok",
			beforeTest: func(mockSQL sqlmock.Sqlmock) {
				mockSQL.
					ExpectExec(regexp.QuoteMeta(`INSERT INTO face_samples (person,seq,data) VALUES (?,?,?) ON CONFLICT(person, seq)`)).
					WithArgs("Bob", 1, []byte("png")).
					WillReturnResult(sqlmock.NewResult(1, 1))
			},
		},
		{
			name: "database failure",
			beforeTest: func(mockSQL sqlmock.Sqlmock) {
				mockSQL.
					ExpectExec(regexp.QuoteMeta(`INSERT INTO face_samples`)).
					WillReturnError(errors.New("disk I/O error"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockDB, mockSQL, err := sqlmock.New()
			if err != nil {
				t.Fatalf("sqlmock.New() error = %v", err)
			}
			defer mockDB.Close()

			tt.beforeTest(mockSQL)
			err = database.NewSampleStore(mockDB).Put("Bob", 1, []byte("png"))
			if (err != nil) != tt.wantErr {
				t.Errorf("Put() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err := mockSQL.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func Test_SampleStore_Listing(t *testing.T) {
	mockDB, mockSQL, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer mockDB.Close()

	mockSQL.
		ExpectQuery(regexp.QuoteMeta(`SELECT DISTINCT person FROM face_samples ORDER BY person ASC`)).
		WillReturnRows(sqlmock.NewRows([]string{"person"}).AddRow("Alice").AddRow("Bob"))
	mockSQL.
		ExpectQuery(regexp.QuoteMeta(`SELECT seq FROM face_samples WHERE person = ? ORDER BY seq ASC`)).
		WithArgs("Alice").
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(1).AddRow(2).AddRow(5))

	store := database.NewSampleStore(mockDB)

	persons, err := store.ListPersons()
	if err != nil {
		t.Fatalf("ListPersons() error = %v", err)
	}
	if want := []string{"Alice", "Bob"}; !reflect.DeepEqual(persons, want) {
		t.Errorf("ListPersons() = %v, want %v", persons, want)
	}

	seqs, err := store.ListSequences("Alice")
	if err != nil {
		t.Fatalf("ListSequences() error = %v", err)
	}
	if want := []int{1, 2, 5}; !reflect.DeepEqual(seqs, want) {
		t.Errorf("ListSequences() = %v, want %v", seqs, want)
	}
	if err := mockSQL.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
