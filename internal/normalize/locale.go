package normalize

import "time"

// SourceZone is the offset applied to naive schedule timestamps (KST).
var SourceZone = time.FixedZone("KST", 9*60*60)

// CurrencyMarker trails price amounts on source pages.
const CurrencyMarker = "원"

// UnknownCategory is returned when no category keyword matches.
const UnknownCategory = "기타"
