package mysql

// -----------------------------------------------------------------------------
// INVENTORY
// -----------------------------------------------------------------------------

const roomColumns = `
SELECT
  r.id,
  r.unit_id,
  r.room_number,
  r.max_occupancy,
  r.has_ac,
  r.is_active,
  u.unit_number,
  u.floor,
  p.id,
  p.name
FROM rooms r
JOIN units u      ON u.id = r.unit_id
JOIN properties p ON p.id = u.property_id
`

const getRoomSQL = roomColumns + `WHERE r.id = ?`

// Filters are appended by SearchRooms.
const searchRoomsSQL = roomColumns + `WHERE r.is_active = 1 AND u.is_active = 1 AND p.is_active = 1`

const unitColumns = `
SELECT
  u.id,
  u.property_id,
  u.unit_number,
  u.floor,
  u.is_active,
  p.name
FROM units u
JOIN properties p ON p.id = u.property_id
`

const getUnitSQL = unitColumns + `WHERE u.id = ?`

const searchUnitsSQL = unitColumns + `WHERE u.is_active = 1 AND p.is_active = 1 ORDER BY u.id`

// Unit rooms, filtered by unit_id IN (...).
const unitRoomsPrefix = `
SELECT id, unit_id, room_number, max_occupancy, has_ac, is_active
FROM rooms
WHERE is_active = 1 AND unit_id IN `

const roomAmenitiesPrefix = `
SELECT ra.room_id, a.name, a.icon
FROM room_amenities ra
JOIN amenities a ON a.id = ra.amenity_id
WHERE ra.room_id IN `

const unitAmenitiesPrefix = `
SELECT ua.unit_id, a.name, a.icon
FROM unit_amenities ua
JOIN amenities a ON a.id = ua.amenity_id
WHERE ua.unit_id IN `

// Rate candidates active on a date, most recent validity first. The owning
// column (room_id or unit_id) and its IN list are spliced in by ratesFor.
const ratesSelect = `
SELECT id, target_type, COALESCE(room_id, unit_id), rate_type, pricing_tier,
       min_nights, max_nights, price, tax_inclusive, valid_from, valid_to
FROM room_pricing
WHERE valid_from <= ? AND (valid_to IS NULL OR valid_to >= ?) AND `

const ratesOrder = ` ORDER BY valid_from DESC, id`

// -----------------------------------------------------------------------------
// HOLDS & HIERARCHY
// -----------------------------------------------------------------------------

// Each hold source is filtered on the half-open overlap checkIn < ? AND checkOut > ?.
const bookingHoldsSQL = `
SELECT 'BOOKING', bi.target_type, COALESCE(bi.room_id, bi.unit_id), b.check_in, b.check_out, b.id
FROM booking_items bi
JOIN bookings b ON b.id = bi.booking_id
WHERE b.status IN ('PENDING','CONFIRMED','CHECKED_IN')
  AND b.check_in < ? AND b.check_out > ?`

const lockHoldsSQL = `
SELECT 'LOCK', l.target_type, COALESCE(l.room_id, l.unit_id), l.check_in, l.check_out, l.session_key
FROM inventory_locks l
WHERE l.expires_at >= ?
  AND l.check_in < ? AND l.check_out > ?`

// end_date is inclusive, so the block covers [start_date, end_date + 1 day).
const maintenanceHoldsSQL = `
SELECT 'MAINTENANCE', m.target_type, COALESCE(m.room_id, m.unit_id, m.property_id),
       m.start_date, DATE_ADD(m.end_date, INTERVAL 1 DAY), m.id
FROM maintenance_blocks m
WHERE m.start_date < ? AND m.end_date >= ?`

const roomAncestorsPrefix = `
SELECT r.id, r.unit_id, u.property_id
FROM rooms r
JOIN units u ON u.id = r.unit_id
WHERE r.id IN `

const unitAncestorsPrefix = `SELECT id, property_id FROM units WHERE id IN `

const propertyIDsPrefix = `SELECT id FROM properties WHERE id IN `

const roomIDsPrefix = `SELECT id FROM rooms WHERE id IN `

const unitDescendantsPrefix = `
SELECT u.id, r.id
FROM units u
LEFT JOIN rooms r ON r.unit_id = u.id
WHERE u.id IN `

const propertyDescendantsPrefix = `
SELECT p.id, u.id, r.id
FROM properties p
LEFT JOIN units u ON u.property_id = p.id
LEFT JOIN rooms r ON r.unit_id = u.id
WHERE p.id IN `

const lockUnitsPrefix = `SELECT id FROM units WHERE id IN `

// -----------------------------------------------------------------------------
// LOCKS
// -----------------------------------------------------------------------------

const cleanExpiredLocksSQL = `DELETE FROM inventory_locks WHERE expires_at < ?`

const insertLockSQL = `
INSERT INTO inventory_locks
  (id, session_key, target_type, room_id, unit_id, check_in, check_out, expires_at, created_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const getLocksPrefix = `
SELECT id, session_key, target_type, COALESCE(room_id, unit_id), check_in, check_out, expires_at, created_at
FROM inventory_locks
WHERE session_key IN `

const deleteLocksPrefix = `DELETE FROM inventory_locks WHERE session_key IN `

// -----------------------------------------------------------------------------
// BOOKINGS
// -----------------------------------------------------------------------------

// LAST_INSERT_ID(expr) makes the new sequence value come back as the insert id.
const nextBookingSeqSQL = `
INSERT INTO booking_ref_counters (year, seq)
VALUES (?, LAST_INSERT_ID(1))
ON DUPLICATE KEY UPDATE seq = LAST_INSERT_ID(seq + 1)
`

const insertBookingSQL = `
INSERT INTO bookings
  (id, booking_ref, user_id, booking_type, check_in, check_out, nights, guests, status,
   subtotal, discount_amount, tax_amount, total_amount, coupon_id, coupon_code, notes,
   created_at, updated_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const insertBookingItemSQL = `
INSERT INTO booking_items
  (id, booking_id, target_type, room_id, unit_id, pricing_id, rate_type,
   price_per_night, nights, subtotal, label)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const bookingColumns = `
SELECT
  id, booking_ref, user_id, booking_type, check_in, check_out, nights, guests, status,
  subtotal, discount_amount, tax_amount, total_amount, coupon_id, coupon_code, notes,
  created_at, updated_at
FROM bookings
`

const getBookingSQL = bookingColumns + `WHERE id = ?`

const bookingItemsPrefix = `
SELECT id, booking_id, target_type, COALESCE(room_id, unit_id), pricing_id, rate_type,
       price_per_night, nights, subtotal, label
FROM booking_items
WHERE booking_id IN `

const updateBookingStatusSQL = `
UPDATE bookings SET status = ?, updated_at = ?
WHERE id = ? AND status = ?
`

const bookingStatusSQL = `SELECT status FROM bookings WHERE id = ?`

// -----------------------------------------------------------------------------
// REFERENCE DATA
// -----------------------------------------------------------------------------

const activeTaxesSQL = `
SELECT id, name, rate, tax_type, applies_to, is_active
FROM taxes
WHERE is_active = 1
ORDER BY name, id
`

// The default collation makes the code lookup case-insensitive.
const getCouponSQL = `
SELECT id, code, name, discount_type, discount_value, max_uses, used_count,
       min_nights, min_amount, valid_from, valid_to, is_active
FROM coupons
WHERE code = ?
`

const redeemCouponSQL = `UPDATE coupons SET used_count = used_count + 1 WHERE id = ?`
