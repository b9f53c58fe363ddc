package instant

// Weekday numbers follow ISO 8601: Monday is 1, Sunday is 7.
type Weekday uint8

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var wdayCodes = [...]string{"", "MO", "TU", "WE", "TH", "FR", "SA", "SU"}

// String returns the two-letter calendar code.
func (w Weekday) String() string {
	if w < Monday || w > Sunday {
		return "??"
	}
	return wdayCodes[w]
}

// ParseWeekday reads a two-letter weekday code.
func ParseWeekday(s string) (Weekday, bool) {
	for w := Monday; w <= Sunday; w++ {
		if s == wdayCodes[w] {
			return w, true
		}
	}
	return 0, false
}

var mdays = [...]int{0, 31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

func IsLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

func DaysInMonth(y, m int) int {
	if m < 1 || m > 12 {
		return 0
	}
	if m == 2 && IsLeap(y) {
		return 29
	}
	return mdays[m]
}

func DaysInYear(y int) int {
	if IsLeap(y) {
		return 366
	}
	return 365
}

// WeekdayOf uses Sakamoto's method.
func WeekdayOf(y, m, d int) Weekday {
	t := [...]int{0, 3, 2, 5, 0, 3, 5, 1, 4, 6, 2, 4}
	if m < 3 {
		y--
	}
	r := (y + y/4 - y/100 + y/400 + t[m-1] + d) % 7
	if r == 0 {
		return Sunday
	}
	return Weekday(r)
}

func (i Instant) Weekday() Weekday { return WeekdayOf(int(i.Year), int(i.Month), int(i.Day)) }

// YearDay returns the 1-based ordinal day within the year.
func (i Instant) YearDay() int {
	return i.dayNum() - dayNumber(int(i.Year), 1, 1) + 1
}

// Easter returns Gregorian Easter Sunday of year y as an all-day instant.
func Easter(y int) Instant {
	a := y % 19
	b := y / 4
	c := b/25 + 1
	d := 3 * c / 4
	e := 19*a - (8*c+5)/25 + d + 15
	e %= 30
	e += (29578 - a - 32*e) / 1024
	e -= (y%7 + b - d + e + 2) % 7
	if e <= 31 {
		return Date(y, 3, e)
	}
	return Date(y, 4, e-31)
}

// ISOWeek returns the ISO 8601 week-numbering year and week of i.
func (i Instant) ISOWeek() (year, week int) {
	// Thursday of the same ISO week decides the year.
	n := i.dayNum()
	thu := n - int(i.Weekday()) + int(Thursday)
	ty, _, _ := civil(thu)
	week = (thu-dayNumber(ty, 1, 1))/7 + 1
	return ty, week
}

// ISOWeeks returns the number of ISO weeks in year y (52 or 53).
func ISOWeeks(y int) int {
	_, w := Date(y, 12, 28).ISOWeek()
	return w
}

// ISOWeekStart returns the Monday of ISO week w of year y.
func ISOWeekStart(y, w int) Instant {
	jan4 := Date(y, 1, 4)
	mon := jan4.dayNum() - int(jan4.Weekday()) + int(Monday)
	yy, mm, dd := civil(mon + (w-1)*7)
	return Date(yy, mm, dd)
}

// dayNumber counts days since 1970-01-01 (proleptic Gregorian).
func dayNumber(y, m, d int) int {
	if m <= 2 {
		y--
	}
	era := y / 400
	if y < 0 && y%400 != 0 {
		era--
	}
	yoe := y - era*400
	mp := (m + 9) % 12
	doy := (153*mp+2)/5 + d - 1
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	return era*146097 + doe - 719468
}

func civil(n int) (y, m, d int) {
	n += 719468
	era := n / 146097
	if n < 0 && n%146097 != 0 {
		era--
	}
	doe := n - era*146097
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365
	y = yoe + era*400
	doy := doe - (365*yoe + yoe/4 - yoe/100)
	mp := (5*doy + 2) / 153
	d = doy - (153*mp+2)/5 + 1
	if mp < 10 {
		m = mp + 3
	} else {
		m = mp - 9
	}
	if m <= 2 {
		y++
	}
	return y, m, d
}
