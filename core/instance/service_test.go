package instance_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maoni/core/instance"
	dummydb "github.com/trezcool/maoni/storage/database/dummy"
	testutil "github.com/trezcool/maoni/tests"
)

func setup(t *testing.T) instance.Service {
	testutil.NewTestConfig()
	db, err := dummydb.Open()
	require.NoError(t, err)
	return instance.NewService(db, dummydb.NewInstanceRepository(db))
}

func TestService_Create(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, instance.NewInstance{Name: "2023-24"})
	require.NoError(t, err)
	assert.True(t, first.IsLatest)
	assert.True(t, first.IsSelected)

	t.Run("duplicate name", func(t *testing.T) {
		_, err := svc.Create(ctx, instance.NewInstance{Name: "2023-24"})
		assert.Equal(t, instance.ErrInstanceExists, errors.Cause(err))
	})

	t.Run("new instance demotes the previous one", func(t *testing.T) {
		second, err := svc.Create(ctx, instance.NewInstance{Name: "2024-25"})
		require.NoError(t, err)
		assert.True(t, second.IsLatest)
		assert.True(t, second.IsSelected)

		insts, err := svc.Query(ctx)
		require.NoError(t, err)
		require.Len(t, insts, 2)

		var latest, selected int
		for _, inst := range insts {
			if inst.IsLatest {
				latest++
			}
			if inst.IsSelected {
				selected++
			}
		}
		assert.Equal(t, 1, latest)
		assert.Equal(t, 1, selected)

		sel, err := svc.Selected(ctx)
		require.NoError(t, err)
		assert.Equal(t, second.ID, sel.ID)
	})
}

func TestService_SecretCode(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	t.Run("no code yet", func(t *testing.T) {
		err := svc.CheckSecretCode(ctx, "WHATEVER")
		assert.Equal(t, instance.ErrNoSecretCode, errors.Cause(err))
	})

	code, err := svc.GenerateSecretCode(ctx)
	require.NoError(t, err)
	assert.Len(t, code, 8)

	assert.NoError(t, svc.CheckSecretCode(ctx, code))
	assert.Equal(t, instance.ErrBadSecretCode, errors.Cause(svc.CheckSecretCode(ctx, "NOPE1234")))

	t.Run("rotation invalidates the old code", func(t *testing.T) {
		newCode, err := svc.GenerateSecretCode(ctx)
		require.NoError(t, err)

		assert.NoError(t, svc.CheckSecretCode(ctx, newCode))
		if newCode != code {
			assert.Equal(t, instance.ErrBadSecretCode, errors.Cause(svc.CheckSecretCode(ctx, code)))
		}
	})
}
