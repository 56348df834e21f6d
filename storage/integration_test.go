package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startMySQLContainer(ctx context.Context, t *testing.T) (testcontainers.Container, Config) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "mysql:8.0",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "secret",
			"MYSQL_DATABASE":      "greentea_test",
		},
		WaitingFor: wait.ForListeningPort("3306/tcp").WithStartupTimeout(2 * time.Minute),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306")
	require.NoError(t, err)

	cfg := Config{
		User:        "root",
		Password:    "secret",
		Host:        host,
		Port:        uint16(port.Int()),
		Database:    "greentea_test",
		PoolSize:    4,
		DialTimeout: 10 * time.Second,
	}
	return container, cfg
}

func setupIntegrationPool(ctx context.Context, t *testing.T) *Pool {
	t.Helper()

	container, cfg := startMySQLContainer(ctx, t)
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	pool, err := NewPool(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pool.Close()
	})

	// MySQL accepts TCP connections before authentication is ready,
	// so give the migration its own patience.
	deadline := time.Now().Add(90 * time.Second)
	for {
		err = Migrate(ctx, pool.DB())
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(2 * time.Second)
	}
	require.NoError(t, err)
	return pool
}

func TestIntegration_SenderGetPK(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	pool := setupIntegrationPool(ctx, t)

	conn, err := pool.Get(ctx)
	require.NoError(t, err)
	defer pool.Put(conn)

	sender := &SenderUser{
		TgUserID:  1001,
		Username:  "ammar",
		FirstName: "Ammar",
	}
	pk1, err := sender.GetPK(ctx, conn)
	require.NoError(t, err)
	assert.NotZero(t, pk1)

	// Second resolve must reuse the row
	pk2, err := sender.GetPK(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, pk1, pk2)

	var count int
	err = conn.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM gt_users WHERE tg_user_id = ?", sender.TgUserID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIntegration_MessageSaveUpsert(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	pool := setupIntegrationPool(ctx, t)

	conn, err := pool.Get(ctx)
	require.NoError(t, err)
	defer pool.Put(conn)

	msg := &Message{
		ChatID:          -100123,
		ChatTitle:       "general",
		TgMsgID:         555,
		SenderUserID:    1001,
		SenderUsername:  "ammar",
		SenderFirstName: "Ammar",
		Text:            "hello world",
		TgDate:          time.Date(2021, 10, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, msg.Save(ctx, conn))

	// Saving an edit of the same message must not create a second row
	msg.Text = "hello world (edited)"
	msg.IsEdited = true
	require.NoError(t, msg.Save(ctx, conn))

	var msgCount int
	err = conn.QueryRowContext(ctx, "SELECT COUNT(1) FROM gt_messages").Scan(&msgCount)
	require.NoError(t, err)
	assert.Equal(t, 1, msgCount)

	var text string
	var edited bool
	err = conn.QueryRowContext(ctx,
		`SELECT c.text, m.is_edited FROM gt_messages m
		 INNER JOIN gt_message_content c ON c.id = m.id
		 WHERE m.tg_msg_id = ?`, msg.TgMsgID).Scan(&text, &edited)
	require.NoError(t, err)
	assert.Equal(t, "hello world (edited)", text)
	assert.True(t, edited)

	var groupName string
	err = conn.QueryRowContext(ctx,
		"SELECT name FROM gt_groups WHERE tg_group_id = ?", msg.ChatID).Scan(&groupName)
	require.NoError(t, err)
	assert.Equal(t, "general", groupName)
}

func TestIntegration_PoolExhaustion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	pool := setupIntegrationPool(ctx, t)

	conns := make([]*Conn, 0, pool.Size())
	for i := 0; i < pool.Size(); i++ {
		conn, err := pool.Get(ctx)
		require.NoError(t, err, fmt.Sprintf("acquire %d", i))
		conns = append(conns, conn)
	}

	_, err := pool.Get(ctx)
	require.Error(t, err)

	for _, conn := range conns {
		pool.Put(conn)
	}
	conn, err := pool.Get(ctx)
	require.NoError(t, err)
	pool.Put(conn)
}
