package cheader

import (
	"errors"
	"testing"

	"github.com/aqibfaruqui/peri/internal/checker"
	"github.com/aqibfaruqui/peri/internal/test"
)

const source = `peripheral Timer at 0x4000_0000 {
    states: Disabled, Enabled;
    initial: Disabled;
    registers u32 { CTRL at 0x00; }
    registers u8 { FLAGS at 0x04; }
}
peripheral Led at 0x4000_1000 { states: Off, On; initial: Off; }

fn enable_timer() :: Timer<Disabled> -> Timer<Enabled> { Timer.CTRL = 1; }
fn boot(n: i32) :: Timer<Disabled> -> Timer<Enabled>, Led<Off> -> Led<On> { enable_timer(); turn_on(); }
fn turn_on() :: Led<Off> -> Led<On> { }
fn count() { if 1 { return 3; } return 4; }
fn main() { boot(1); }
`

func TestGenerate(t *testing.T) {
	result := checker.CheckSource("src/boot.peri", source, checker.DefaultOptions())
	if !result.Valid {
		t.Fatalf("unexpected errors:\n%s", result.Report())
	}

	header, err := Generate(result, Options{})
	if err != nil {
		t.Fatal(err)
	}

	test.AssertEqualWithDiff(t, header, `/* Generated by peric from boot.peri. Do not edit. */
#ifndef BOOT_PERI_H
#define BOOT_PERI_H

#include <stdint.h>

/* Timer: Disabled, Enabled, initially Disabled */
#define TIMER_BASE 0x40000000u
#define TIMER_CTRL (*(volatile uint32_t *)0x40000000u)
#define TIMER_FLAGS (*(volatile uint8_t *)0x40000004u)
typedef struct Timer_Disabled_s *Timer_Disabled;
typedef struct Timer_Enabled_s *Timer_Enabled;

/* Led: Off, On, initially Off */
#define LED_BASE 0x40001000u
typedef struct Led_Off_s *Led_Off;
typedef struct Led_On_s *Led_On;

/* Typestated functions */
/* enable_timer: Timer<Disabled> -> Timer<Enabled> */
Timer_Enabled enable_timer(Timer_Disabled timer_h);
/* boot: Timer<Disabled> -> Timer<Enabled>, Led<Off> -> Led<On> */
typedef struct {
    Timer_Enabled timer_h;
    Led_On led_h;
} boot_result;
boot_result boot(int32_t n, Timer_Disabled timer_h, Led_Off led_h);
/* turn_on: Led<Off> -> Led<On> */
Led_On turn_on(Led_Off led_h);

int32_t count(void);
void main(void);

#endif /* BOOT_PERI_H */
`)
}

func TestHandleNamesAndReturnValues(t *testing.T) {
	result := checker.CheckSource("on.peri", `peripheral Timer at 0x4000_0000 {
    states: Off, On;
    initial: Off;
    registers u32 { CTRL at 0x00; }
}
fn on(timer: i32, timer_h: i32) :: Timer<Off> -> Timer<On> { Timer.CTRL = timer; return 1; }
fn off(value: i32) :: Timer<On> -> Timer<Off> { Timer.CTRL = value; }
`, checker.DefaultOptions())
	if !result.Valid {
		t.Fatalf("unexpected errors:\n%s", result.Report())
	}

	header, err := Generate(result, Options{})
	if err != nil {
		t.Fatal(err)
	}
	test.AssertContains(t, header, `/* on: Timer<Off> -> Timer<On> */
typedef struct {
    int32_t value;
    Timer_On timer_h_;
} on_result;
on_result on(int32_t timer, int32_t timer_h, Timer_Off timer_h_);
`, `Timer_Off off(int32_t value, Timer_On timer_h);
`)
}

func TestGuardOption(t *testing.T) {
	result := checker.CheckSource("boot.peri", source, checker.DefaultOptions())
	header, err := Generate(result, Options{Guard: "DEVICE_H"})
	if err != nil {
		t.Fatal(err)
	}
	test.AssertContains(t, header, "#ifndef DEVICE_H\n#define DEVICE_H\n", "#endif /* DEVICE_H */\n")
}

func TestRejectedProgram(t *testing.T) {
	result := checker.CheckSource("boot.peri", source+`
fn broken() :: Timer<Enabled> -> Timer<Enabled> { enable_timer(); }
`, checker.DefaultOptions())
	test.AssertEqual(t, result.Valid, false)

	_, err := Generate(result, Options{})
	test.AssertEqual(t, errors.Is(err, ErrInvalid), true)
}

func TestGuard(t *testing.T) {
	test.AssertEqual(t, Guard("boards/stm32-f4.peri"), "STM32_F4_PERI_H")
	test.AssertEqual(t, Guard("<stdin>"), "_STDIN__H")
	test.AssertEqual(t, Guard(""), "PERI_H")
}
