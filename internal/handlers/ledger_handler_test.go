package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stakepool/treasury/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedgerHandlerForTest(t *testing.T) (*LedgerHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewLedgerHandler(services.NewLedgerService(db), services.NewFxService(db, nil)), mock
}

func postEntry(handler *LedgerHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ledger/entries", strings.NewReader(body))
	req = req.WithContext(context.WithValue(req.Context(), "userID", "tester"))
	rec := httptest.NewRecorder()
	handler.AppendEntry(rec, req)
	return rec
}

func TestLedgerHandler_AppendEntry(t *testing.T) {
	t.Run("bet result carries its share allocation", func(t *testing.T) {
		handler, mock := newLedgerHandlerForTest(t)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		rec := postEntry(handler, `{
			"type": "BET_RESULT",
			"associateId": "assoc-1",
			"bookmakerId": "bm-1",
			"amountNative": "120.00",
			"currency": "EUR",
			"settlementState": "WON",
			"principalReturnedEur": "100.00",
			"perSurebetShareEur": "20.00",
			"surebetId": "sb-1",
			"betId": "bet-1"
		}`)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("share fields on a deposit rejected", func(t *testing.T) {
		handler, mock := newLedgerHandlerForTest(t)

		rec := postEntry(handler, `{
			"type": "DEPOSIT",
			"associateId": "assoc-1",
			"amountNative": "100.00",
			"currency": "EUR",
			"perSurebetShareEur": "20.00"
		}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("sub-cent native amount accepted and stored quantized", func(t *testing.T) {
		handler, mock := newLedgerHandlerForTest(t)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		rec := postEntry(handler, `{
			"type": "DEPOSIT",
			"associateId": "assoc-1",
			"amountNative": "10.004",
			"currency": "EUR"
		}`)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"amountEur":"10",`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
