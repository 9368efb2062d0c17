package normalize

import "strings"

type categoryRule struct {
	name     string
	keywords []string
}

// Declaration order decides ties: the first rule with a hit wins.
var categoryRules = []categoryRule{
	{name: "식품", keywords: []string{"식품", "간식", "과자", "초콜릿", "커피", "차", "주스", "음료", "김치", "한우", "소고기", "돼지고기", "닭", "해산물", "생선", "과일", "채소", "견과", "두유"}},
	{name: "의류", keywords: []string{"의류", "티셔츠", "셔츠", "자켓", "점퍼", "패딩", "바지", "데님", "원피스", "니트", "가디건", "후드", "운동복"}},
	{name: "리빙", keywords: []string{"침구", "이불", "베개", "매트리스", "커튼", "소파", "의자", "테이블", "주방", "수납", "청소", "세제", "수건"}},
	{name: "가전", keywords: []string{"가전", "TV", "세탁기", "건조기", "냉장고", "에어컨", "청소기", "공기청정기", "노트북", "스마트폰", "이어폰", "오디오"}},
	{name: "뷰티", keywords: []string{"화장품", "스킨", "로션", "크림", "팩", "앰플", "헤어", "샴푸", "린스", "향수"}},
	{name: "건강", keywords: []string{"건강", "비타민", "영양제", "홍삼", "프로바이오틱", "오메가", "단백질"}},
	{name: "패션잡화", keywords: []string{"가방", "지갑", "신발", "운동화", "샌들", "모자", "시계", "주얼리"}},
}

// Category infers a coarse category from a raw title by case-insensitive
// substring containment of the rule keywords.
func Category(raw string) string {
	normalized := Title(raw)
	if normalized == "" {
		return UnknownCategory
	}
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(normalized, strings.ToLower(kw)) {
				return rule.name
			}
		}
	}
	return UnknownCategory
}
