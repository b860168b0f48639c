package imu

// Bus is the hardware boundary this package talks to: a single-transfer
// request/response primitive shaped exactly like
// periph.io/x/conn/v3/i2c.Dev's Tx method (conn.Conn's Tx(w, r []byte)
// error), rather than a bespoke interface invented for this repo. A real
// deployment satisfies Bus with a periph.io i2c.Dev bound to the
// ISM330DHCX's I2C address (0x6a); imu/simbus satisfies it with an
// in-memory register file and synthetic FIFO content for tests and for
// running the pipeline without hardware present.
//
// Tx writes w (typically a one-byte register address, optionally
// followed by data to write) then reads len(r) bytes starting at that
// register, auto-incrementing, matching the IF_INC behavior this driver
// enables in boot(). Either w or r may be empty for a write-only or
// read-only transfer.
type Bus interface {
	Tx(w, r []byte) error
}

// Register addresses from the ISM330DHCX map. Only the fields this
// driver touches are named.
const (
	regFIFOCtrl3    = 0x09 // BDR_XL (bits 3:0), BDR_GY (bits 7:4)
	regFIFOCtrl4    = 0x0A // FIFO mode (bits 2:0)
	regWhoAmI       = 0x0F
	regCtrl1XL      = 0x10 // FS_XL (bits 3:2), ODR_XL (bits 7:4), LPF2_XL_EN (bit 1)
	regCtrl2G       = 0x11 // FS_G (bits 3:1), ODR_G (bits 7:4)
	regCtrl3C       = 0x12 // BDU (bit 6), IF_INC (bit 2), BOOT (bit 7)
	regCtrl7G       = 0x16 // G_HM_MODE (bit 7)
	regFIFOStatus1  = 0x3A // DIFF_FIFO[7:0]
	regFIFOStatus2  = 0x3B // DIFF_FIFO[9:8] (bits 1:0), OVER_RUN (bit 6), FIFO_FULL (bit 5), OVER_RUN_LATCHED (bit 3)
	regFIFODataTag  = 0x78 // tag byte, sensor type in bits [7:3]
	regFIFODataOutX = 0x79 // 6 bytes: X_L, X_H, Y_L, Y_H, Z_L, Z_H
)

// FIFO tag values (ISM330DHCX "sensor tag", bits [7:3] of the tag byte).
const (
	tagGyro  byte = 0x01
	tagAccel byte = 0x02
)

// FIFOMode selects the FIFO_CTRL4 operating mode.
type FIFOMode byte

const (
	FIFOModeBypass FIFOMode = 0x0
	FIFOModeStream FIFOMode = 0x6
)

// Register field values for this driver's fixed configuration (208Hz
// ODR, +-4g accel, +-500dps gyro).
const (
	odr208Hz  byte = 0x5 // ODR_XL/ODR_G field for 208 Hz
	fsAccel4g byte = 0x2 // FS_XL field for +-4g
	fsGyro500 byte = 0x1 // FS_G field for +-500 dps
	bdr208Hz  byte = 0x5 // FIFO batch data rate field for 208 Hz
)

func (d *Device) regWrite(addr byte, data byte) error {
	return d.bus.Tx([]byte{addr, data}, nil)
}

func (d *Device) regRead(addr byte, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := d.bus.Tx([]byte{addr}, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
