package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqurishi/POS-in-NET-sub004/internal/entity"
)

func TestAckConflictClausePrintedIsIgnored(t *testing.T) {
	c := ackConflictClause(&entity.PendingAck{
		CloudOrderID: "cloud-1",
		Outcome:      entity.AckOutcomePrinted,
	})

	assert.True(t, c.DoNothing)
	assert.Empty(t, c.DoUpdates)
}

func TestAckConflictClauseFailedUpgradesExistingRow(t *testing.T) {
	c := ackConflictClause(&entity.PendingAck{
		CloudOrderID: "cloud-1",
		Outcome:      entity.AckOutcomeFailed,
		Reason:       "printer offline: Front",
	})

	assert.False(t, c.DoNothing)
	require.Len(t, c.Columns, 1)
	assert.Equal(t, "cloud_order_id", c.Columns[0].Name)

	// 小票失败要盖掉先到的厨房票成功，printed_at 一并清空
	updates := map[string]interface{}{}
	for _, a := range c.DoUpdates {
		updates[a.Column.Name] = a.Value
	}
	assert.Equal(t, entity.AckOutcomeFailed, updates["outcome"])
	assert.Equal(t, "printer offline: Front", updates["reason"])
	assert.Nil(t, updates["printed_at"])
}
