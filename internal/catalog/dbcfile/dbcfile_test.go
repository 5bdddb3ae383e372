package dbcfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/busdecode/internal/catalog"
	"github.com/danmuck/busdecode/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const driveDBC = `VERSION ""

NS_ :

BS_:

BU_: ECU

BO_ 416 Drive: 8 ECU
 SG_ Gear : 0|4@1+ (1,0) [0|15] "" Vector__XXX
 SG_ Speed : 8|16@1+ (0.01,0) [0|655.35] "km/h" Vector__XXX
 SG_ Torque : 31|16@0- (0.5,-100) [-16484|16483.5] "Nm" Vector__XXX

CM_ SG_ 416 Speed "Vehicle speed";
VAL_ 416 Gear 0 "P" 1 "R" 2 "N" 3 "D" ;
`

func TestParseDriveMessage(t *testing.T) {
	testlog.Start(t)
	msgs, err := Parse("can1-vehicle.dbc", []byte(driveDBC))
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	msg := msgs[0]
	assert.Equal(t, uint32(416), msg.ID)
	assert.Equal(t, "Drive", msg.Name)
	assert.Equal(t, 8, msg.Length)
	require.Len(t, msg.Signals, 3)

	gear := msg.Signals[0]
	assert.Equal(t, "Gear", gear.Name)
	assert.Equal(t, uint16(4), gear.Length)
	assert.Equal(t, catalog.LittleEndian, gear.ByteOrder)
	assert.Len(t, gear.Choices, 4)

	speed := msg.Signals[1]
	assert.Equal(t, 0.01, speed.Scale)
	assert.Equal(t, "km/h", speed.Unit)
	assert.Equal(t, "Vehicle speed", speed.Note)

	torque := msg.Signals[2]
	assert.Equal(t, catalog.BigEndian, torque.ByteOrder)
	assert.True(t, torque.Signed)
	assert.Equal(t, -100.0, torque.Offset)
}

func TestParserFeedsRegistry(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	good := filepath.Join(dir, "can1-vehicle.dbc")
	bad := filepath.Join(dir, "can9-internal.dbc")
	require.NoError(t, os.WriteFile(good, []byte(driveDBC), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("BO_ not a message"), 0o644))

	reg, err := catalog.LoadCatalogs(Parser{}, []string{bad, good}, catalog.DefaultEnumPolicy())
	require.NoError(t, err)
	assert.Equal(t, []string{"can1_vehicle"}, reg.Tags())
	assert.Equal(t, []string{bad}, reg.Skipped())
	assert.Equal(t, catalog.EnumTable{"0": "P", "1": "R", "2": "N", "3": "D"}, reg.EnumMap()["Gear"])
}
