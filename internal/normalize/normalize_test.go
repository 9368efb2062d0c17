package normalize

import (
	"testing"
	"time"
)

func TestTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "[무료배송] 프리미엄   침구 세트!!", want: "프리미엄 침구 세트"},
		{in: "오늘만 특가 ★삼성 TV★ 55인치", want: "삼성 tv 55인치"},
		{in: "단독\t기획전\n한우 세트", want: "한우 세트"},
		{in: "♥♥♥", want: ""},
	}
	for _, tc := range cases {
		if got := Title(tc.in); got != tc.want {
			t.Fatalf("Title(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTitleIdempotent(t *testing.T) {
	inputs := []string{"[단독] 삼성 TV 75인치 (정품)", "Nike 운동화 / 2켤레", "  "}
	for _, in := range inputs {
		once := Title(in)
		if twice := Title(once); twice != once {
			t.Fatalf("normalizing twice changed %q: %q -> %q", in, once, twice)
		}
	}
}

func TestCategory(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "프리미엄 한우 선물세트", want: "식품"},
		{in: "구스다운 패딩 점퍼", want: "의류"},
		{in: "호텔 침구 세트", want: "리빙"},
		{in: "삼성 TV 75인치", want: "가전"},
		{in: "수분 크림 2종", want: "뷰티"},
		{in: "6년근 홍삼정", want: "건강"},
		{in: "가죽 지갑", want: "패션잡화"},
		{in: "여행 상품권", want: UnknownCategory},
		{in: "", want: UnknownCategory},
	}
	for _, tc := range cases {
		if got := Category(tc.in); got != tc.want {
			t.Fatalf("Category(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCategoryFirstRuleWins(t *testing.T) {
	// "커피" (식품) and "머신" (none) plus "가전": 식품 is declared first.
	if got := Category("커피 가전 머신"); got != "식품" {
		t.Fatalf("expected first declared category, got %q", got)
	}
}

func TestParsePriceText(t *testing.T) {
	if v := ParsePriceText("12,900원"); v == nil || *v != 12900 {
		t.Fatalf("expected 12900, got %v", v)
	}
	if v := ParsePriceText("가격 39,000.50원"); v == nil || *v != 39000 {
		t.Fatalf("fraction must be truncated, got %v", v)
	}
	if v := ParsePriceText("상담"); v != nil {
		t.Fatalf("expected nil, got %d", *v)
	}
	if v := ParsePriceText(""); v != nil {
		t.Fatal("empty text must yield nil")
	}
}

func TestParsePriceInfo(t *testing.T) {
	original, sale, rate := ParsePriceInfo("정가 59,000원 할인가 39,000원")
	if original == nil || *original != 59000 {
		t.Fatalf("unexpected original: %v", original)
	}
	if sale == nil || *sale != 39000 {
		t.Fatalf("unexpected sale: %v", sale)
	}
	if rate == nil || *rate != 33.9 {
		t.Fatalf("unexpected rate: %v", rate)
	}

	original, sale, rate = ParsePriceInfo("39,000원")
	if original != nil || rate != nil {
		t.Fatal("single amount must leave original and rate empty")
	}
	if sale == nil || *sale != 39000 {
		t.Fatalf("unexpected sale: %v", sale)
	}

	original, sale, rate = ParsePriceInfo("가격 문의")
	if original != nil || sale != nil || rate != nil {
		t.Fatal("no digits must yield all nil")
	}
}

func TestDiscountRate(t *testing.T) {
	cases := []struct {
		name     string
		original *int64
		sale     *int64
		want     *float64
	}{
		{name: "regular", original: Int64(10000), sale: Int64(7500), want: ptrFloat(25)},
		{name: "rounded", original: Int64(30000), sale: Int64(20000), want: ptrFloat(33.3)},
		{name: "binary value below half", original: Int64(800), sale: Int64(110), want: ptrFloat(86.2)},
		{name: "binary value below half again", original: Int64(800), sale: Int64(150), want: ptrFloat(81.2)},
		{name: "no discount", original: Int64(5000), sale: Int64(5000), want: ptrFloat(0)},
		{name: "inverted", original: Int64(5000), sale: Int64(6000)},
		{name: "zero original", original: Int64(0), sale: Int64(10)},
		{name: "missing sale", original: Int64(100)},
		{name: "missing original", sale: Int64(100)},
	}
	for _, tc := range cases {
		got := DiscountRate(tc.original, tc.sale)
		switch {
		case tc.want == nil && got != nil:
			t.Fatalf("%s: expected nil, got %v", tc.name, *got)
		case tc.want != nil && (got == nil || *got != *tc.want):
			t.Fatalf("%s: expected %v, got %v", tc.name, *tc.want, got)
		}
	}
}

func TestSlotHashCompatibility(t *testing.T) {
	start := time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)
	got := SlotHash(1, start, "프리미엄 침구 세트")
	want := "0e2622bf3b40c8757e0f9f85fd0e2b164a82f947d9afb2dade0b159bd6ebfc44"
	if got != want {
		t.Fatalf("hash drifted: %s", got)
	}

	// Same instant in another zone, with a sub-second component.
	start = time.Date(2026, 2, 3, 9, 30, 0, 250_000_000, SourceZone)
	got = SlotHash(7, start, "삼성 tv")
	want = "9b3873336c1d67a1db9e0131528af035ebc58bdf35a64cc35d36ed671468d89b"
	if got != want {
		t.Fatalf("fractional hash drifted: %s", got)
	}
}

func TestSlotHashDiffersByTitle(t *testing.T) {
	start := time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)
	if SlotHash(1, start, "프리미엄 침구 세트") == SlotHash(1, start, "프리미엄 침구 세트 2") {
		t.Fatal("different titles must hash differently")
	}
	if SlotHash(1, start, "a") == SlotHash(2, start, "a") {
		t.Fatal("different channels must hash differently")
	}
}

func ptrFloat(v float64) *float64 {
	return &v
}
