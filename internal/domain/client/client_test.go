package client

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/franchise-orders/internal/failure"
)

type mockRepo struct {
	byCode  map[string]*Client
	byTaxID map[string]*Client
	err     error

	lastTaxID string
}

func (m *mockRepo) FindByCode(_ context.Context, code, store string) (*Client, error) {
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.byCode[code+"/"+store]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *mockRepo) FindByTaxID(_ context.Context, taxID string) (*Client, error) {
	m.lastTaxID = taxID
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.byTaxID[taxID]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func TestResolver_ByCode(t *testing.T) {
	acme := &Client{ID: 1, Code: "ACME", Store: "Store-01", Active: true, PricingGroup: "A"}
	r := NewResolver(&mockRepo{byCode: map[string]*Client{"ACME/Store-01": acme}})

	got, err := r.ByCode(context.Background(), " ACME ", "Store-01")
	require.NoError(t, err)
	assert.Equal(t, acme, got)
}

func TestResolver_ByCode_NotFound(t *testing.T) {
	r := NewResolver(&mockRepo{})

	_, err := r.ByCode(context.Background(), "NOPE", "01")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, failure.KindNotFound, failure.KindOf(err))
	assert.Contains(t, err.Error(), "NOPE")
}

func TestResolver_ByCode_InactiveIsReturned(t *testing.T) {
	inactive := &Client{ID: 2, Code: "OLD", Store: "01", Active: false}
	r := NewResolver(&mockRepo{byCode: map[string]*Client{"OLD/01": inactive}})

	got, err := r.ByCode(context.Background(), "OLD", "01")
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestResolver_ByCode_StoreError(t *testing.T) {
	r := NewResolver(&mockRepo{err: errors.New("connection refused")})

	_, err := r.ByCode(context.Background(), "ACME", "01")
	require.Error(t, err)
	assert.Equal(t, failure.KindInternal, failure.KindOf(err))
}

func TestResolver_ByTaxID_Normalizes(t *testing.T) {
	acme := &Client{ID: 1, TaxID: "12.345.678/0001-90", Active: true}
	repo := &mockRepo{byTaxID: map[string]*Client{"12.345.678/0001-90": acme}}
	r := NewResolver(repo)

	got, err := r.ByTaxID(context.Background(), "12345678000190")
	require.NoError(t, err)
	assert.Equal(t, acme, got)
	assert.Equal(t, "12.345.678/0001-90", repo.lastTaxID)
}

func TestResolver_ByTaxID_Invalid(t *testing.T) {
	repo := &mockRepo{}
	r := NewResolver(repo)

	_, err := r.ByTaxID(context.Background(), "1234")
	require.ErrorIs(t, err, ErrInvalidTaxID)
	assert.Equal(t, failure.KindValidation, failure.KindOf(err))
	assert.Empty(t, repo.lastTaxID)
}

func TestNormalizeTaxID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "digits only", raw: "12345678000190", want: "12.345.678/0001-90"},
		{name: "already formatted", raw: "12.345.678/0001-90", want: "12.345.678/0001-90"},
		{name: "spaces", raw: " 12 345 678 0001 90 ", want: "12.345.678/0001-90"},
		{name: "too short", raw: "1234567800019", wantErr: true},
		{name: "too long", raw: "123456780001901", wantErr: true},
		{name: "letters", raw: "12A45678000190", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeTaxID(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidTaxID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
