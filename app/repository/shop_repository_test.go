package repository

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShopRepository_ListActiveShopIDs(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewShopRepository(db)

	mock.ExpectQuery("SELECT .id. FROM .shops. WHERE owner_id = \\? AND .shops.\\..deleted_at. IS NULL").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3).AddRow(9))

	ids, err := repo.ListActiveShopIDs(7)
	require.NoError(t, err)
	assert.Equal(t, []uint{3, 9}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShopRepository_CountStaffAtShops_NoShops(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewShopRepository(db)

	count, err := repo.CountStaffAtShops(nil, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShopRepository_CountStaffAtShops(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewShopRepository(db)

	mock.ExpectQuery("(?i)SELECT count\\(DISTINCT.*FROM .shop_staff. JOIN users ON users.id = shop_staff.user_id").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.CountStaffAtShops([]uint{3, 9}, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShopRepository_IsOwnerAlsoStaff(t *testing.T) {
	tests := []struct {
		name  string
		count int
		want  bool
	}{
		{name: "assigned", count: 1, want: true},
		{name: "not assigned", count: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewShopRepository(db)

			mock.ExpectQuery("(?i)SELECT count\\(\\*\\) FROM .shop_staff. JOIN shops ON shops.id = shop_staff.shop_id").
				WithArgs(7, 7).
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(tt.count))

			got, err := repo.IsOwnerAlsoStaff(7)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
