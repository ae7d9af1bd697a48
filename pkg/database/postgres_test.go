package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quayside/flotilla/pkg/structs"
)

func TestToSqlIn(t *testing.T) {
	cases := []struct {
		Name       string
		Offset     int
		Field      string
		Args       []string
		ExpectSql  string
		ExpectArgs []interface{}
	}{
		{
			Name:       "Empty",
			Offset:     1,
			Field:      "id",
			Args:       []string{},
			ExpectSql:  "",
			ExpectArgs: []interface{}{},
		},
		{
			Name:       "Single",
			Offset:     1,
			Field:      "id",
			Args:       []string{"a"},
			ExpectSql:  "id IN ($1)",
			ExpectArgs: []interface{}{"a"},
		},
		{
			Name:       "OffsetRespected",
			Offset:     3,
			Field:      "state",
			Args:       []string{"a", "b"},
			ExpectSql:  "state IN ($3, $4)",
			ExpectArgs: []interface{}{"a", "b"},
		},
	}

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			sql, args := toSqlIn(c.Offset, c.Field, c.Args)
			assert.Equal(t, c.ExpectSql, sql)
			assert.Equal(t, c.ExpectArgs, args)
		})
	}
}

func TestTaskColsPrefixed(t *testing.T) {
	prefixed := taskColsPrefixed("t")

	assert.True(t, strings.HasPrefix(prefixed, "t.id, t.name"))
	assert.NotContains(t, prefixed, "\n")
	for _, c := range strings.Split(prefixed, ", ") {
		assert.True(t, strings.HasPrefix(c, "t."), c)
	}
	assert.Len(t, strings.Split(prefixed, ", "), len(strings.Split(taskCols, ",")))
}

func TestTaskSqlArgsMatchesCols(t *testing.T) {
	args := taskSqlArgs(&structs.Task{ID: "x", State: structs.TaskCreated})
	assert.Len(t, args, len(strings.Split(taskCols, ",")))
}

func TestTaskSqlArgsNulls(t *testing.T) {
	args := taskSqlArgs(&structs.Task{ID: "x"})

	assert.Nil(t, args[2])  // payload
	assert.Nil(t, args[14]) // output
	assert.Nil(t, args[16]) // schedule_id

	args = taskSqlArgs(&structs.Task{
		ID:       "x",
		TaskSpec: structs.TaskSpec{Payload: []byte(`{}`), ScheduleID: "s"},
		Output:   []byte(`{"ok":true}`),
	})
	assert.NotNil(t, args[2])
	assert.NotNil(t, args[14])
	assert.NotNil(t, args[16])
}

func TestLockKeyHash(t *testing.T) {
	a := lockKeyHash("fleet_supervisor")
	b := lockKeyHash("fleet_supervisor")
	c := lockKeyHash("task_monitor")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestOptionsSetDefaults(t *testing.T) {
	opts := &Options{URL: "postgres://localhost"}
	opts.setDefaults()

	assert.Equal(t, defaultPasswordEnvVar, opts.PasswordEnvVar)
	assert.Equal(t, defaultUsernameEnvVar, opts.UsernameEnvVar)

	opts = &Options{URL: "postgres://localhost", PasswordEnvVar: "PW", UsernameEnvVar: "UN"}
	opts.setDefaults()

	assert.Equal(t, "PW", opts.PasswordEnvVar)
	assert.Equal(t, "UN", opts.UsernameEnvVar)
}

func TestNullIfEmpty(t *testing.T) {
	assert.Nil(t, nullIfEmpty(""))
	s := nullIfEmpty("x")
	assert.Equal(t, "x", *s)
}
